package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillmind/quill/core"
)

// Clock reports the current date and time.
type Clock struct {
	now func() time.Time
}

// NewClock returns the clock tool.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "current_time",
		Description: "Get the current date and time. Use this whenever the user asks about today's date or the time now.",
		InputSchema: ObjectSchema(map[string]any{}),
	}
}

func (c *Clock) Execute(_ context.Context, _ *core.ToolContext, _ json.RawMessage) (string, error) {
	now := c.now()
	return fmt.Sprintf("current time: %s (%s)", now.Format("2006-01-02 15:04:05"), now.Weekday()), nil
}
