package api

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/savegress/fraudlens/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the connection and attaches it to the progress hub.
// Clients subscribe to the "runs" channel, or to "runs" with a run id
// filter, to follow analysis progress.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := progress.NewClient(h.hub, conn, uuid.New().String())
	h.hub.Register(client)

	// The request context ends when this handler returns; the pumps live
	// for the lifetime of the connection.
	ctx := context.Background()
	go client.WritePump(ctx)
	go client.ReadPump(ctx)
}
