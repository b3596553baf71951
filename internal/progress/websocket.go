package progress

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"caretaker/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The control surface binds to loopback; cross-origin browsers are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebsocketHandler streams scan events to connected clients as JSON.
func WebsocketHandler(hub *Hub, logger *slog.Logger) http.Handler {
	logger = logging.NewComponentLogger(logger, "progress")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", logging.Error(err))
			return
		}
		defer conn.Close()

		events, cancel := hub.Subscribe(ChannelScan)
		defer cancel()

		// Discard client frames; the stream is one-way. Reading also surfaces
		// close frames so the write loop can exit.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	})
}
