// Package server exposes HTTP handlers, including the WebSocket gateway and
// the health check.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades GET requests to WebSocket connections and hands
// them to the hub as IRC clients. Origins are checked against the hub's
// AllowedOrigins.
func WebSocketHandler(h *Hub) http.HandlerFunc {
	policy := newOriginPolicy(h.cfg.AllowedOrigins, h.log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("WebSocket upgrade failed", "error", err)
			return
		}

		t := newWSTransport(conn, h.cfg.MaxLineLength)
		h.log.Info("Accepted connection", "addr", r.RemoteAddr, "kind", KindWebSocket)
		if err := h.accept(t, KindWebSocket); err != nil {
			_ = t.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "goircd server is running!")
}
