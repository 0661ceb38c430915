package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/propdesk/agent-console/internal/realtime"
)

// StreamHandler upgrades UI tabs onto the realtime hub.
type StreamHandler struct {
	hub *realtime.Hub
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(hub *realtime.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Serve upgrades the connection to a websocket. A comma-separated streams
// query parameter narrows the initial subscriptions; the default is all.
func (h *StreamHandler) Serve(c *gin.Context) {
	var streams []string
	if raw := strings.TrimSpace(c.Query("streams")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				streams = append(streams, s)
			}
		}
	}

	h.hub.Serve(streams, c.Writer, c.Request)
}
