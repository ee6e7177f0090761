package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const eventWriteTimeout = 10 * time.Second

// handleEventsWS streams engine events (sync results, dispatched
// notifications, cleanup summaries) to the connected client as JSON messages
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		respondError(w, http.StatusServiceUnavailable, "events_unavailable", "event stream is not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.bus.Subscribe(64)
	defer cancel()

	slog.Info("event stream connected", "remote_addr", r.RemoteAddr)

	// Drain client frames so close handshakes and pings are processed; the
	// stream is write-only otherwise.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			slog.Info("event stream disconnected", "remote_addr", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				slog.Debug("failed to write event", "error", err)
				return
			}
		}
	}
}
