package handlers

import (
	"log"
	"net/http"

	"github.com/riftbridge/custom-match-core/internal/gateway"
	ws "github.com/gorilla/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The desktop client connects from a local origin.
		return true
	},
}

type WebSocketHandler struct {
	hub *gateway.Hub
}

func NewWebSocketHandler(hub *gateway.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Handle upgrades the connection and starts the session pumps. Identity is
// established later by the identify frame, not at upgrade time.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	session := gateway.NewSession(h.hub, conn, r.RemoteAddr, r.UserAgent())
	h.hub.Register(session)

	go session.WritePump()
	go session.ReadPump()
}
