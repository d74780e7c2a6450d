package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/quillmind/quill/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The agent has no browser origin policy of its own.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebsocket serves chat turns over a websocket. Each client text
// message is one chat request; the reply is the same event sequence the
// NDJSON endpoint produces, one event per websocket message.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var payload chatPayload
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		if payload.Message == "" {
			if err := conn.WriteJSON(map[string]string{"type": "error", "message": "message is required"}); err != nil {
				return
			}
			continue
		}

		writeFailed := false
		s.agent.ChatStream(r.Context(), payload.toRequest(), func(ev agent.Event) {
			if writeFailed {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				writeFailed = true
			}
		})
		if writeFailed {
			return
		}
	}
}
