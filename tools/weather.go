package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/quillmind/quill/core"
)

// Weather returns mock weather data. There is no upstream provider; the tool
// exists to exercise the tool loop with a multi-argument call.
type Weather struct{}

// NewWeather returns the mock weather tool.
func NewWeather() *Weather { return &Weather{} }

var weatherConditions = []string{"sunny", "partly cloudy", "overcast", "light rain", "windy"}

func (w *Weather) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "get_weather",
		Description: "Get the current weather for a city. Returns simulated data.",
		InputSchema: ObjectSchema(map[string]any{
			"city": StringProperty("City name, e.g. \"Berlin\""),
		}, "city"),
	}
}

func (w *Weather) Execute(_ context.Context, _ *core.ToolContext, input json.RawMessage) (string, error) {
	var args struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse weather input: %w", err)
	}
	if args.City == "" {
		args.City = "your location"
	}

	condition := weatherConditions[rand.IntN(len(weatherConditions))]
	temp := rand.IntN(25) + 5
	humidity := rand.IntN(50) + 30
	return fmt.Sprintf("weather in %s: %s, %d°C, humidity %d%% (simulated)", args.City, condition, temp, humidity), nil
}
