package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to WebSocket connections and hands them to
// the broadcaster. Origin checks are permissive, matching the CORS policy of
// the HTTP surface.
type Handler struct {
	broadcaster *Broadcaster
}

func NewHandler(broadcaster *Broadcaster) *Handler {
	return &Handler{broadcaster: broadcaster}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket observer connected: %s", r.RemoteAddr)
	c := h.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			h.broadcaster.RemoveClient(c)
			log.Printf("WebSocket observer disconnected: %s", r.RemoteAddr)
		}()
		for {
			// Observers never send application messages; reads only detect
			// disconnects.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
