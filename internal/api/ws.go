package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/hub"
	"github.com/carnavalix/carnavalplay/internal/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The frontend is served from another origin.
		return true
	},
}

// allowedRooms are the rooms a client may join.
var allowedRooms = map[string]bool{
	"general": true,
	"live":    true,
}

// WSHandler upgrades connections and hands them to the hub.
type WSHandler struct {
	hub *hub.Hub
}

// NewWSHandler creates a websocket handler backed by the hub.
func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

// Serve handles GET /ws?sala=general
func (w *WSHandler) Serve(c *gin.Context) {
	room := c.Query("sala")
	if room == "" {
		room = "general"
	}
	if !allowedRooms[room] {
		c.Status(http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(w.hub, conn, room)
	go client.WritePump()
	go client.ReadPump()
}
