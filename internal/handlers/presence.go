package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propdesk/agent-console/internal/console"
	"github.com/propdesk/agent-console/pkg/response"
)

// PresenceHandler exposes the agent's active flag.
type PresenceHandler struct {
	console *console.Console
}

// NewPresenceHandler constructs a presence handler.
func NewPresenceHandler(con *console.Console) *PresenceHandler {
	return &PresenceHandler{console: con}
}

// Get returns whether the agent is marked active.
func (h *PresenceHandler) Get(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"active": h.console.Active()})
}

// Set flips the agent's active flag.
func (h *PresenceHandler) Set(c *gin.Context) {
	var payload struct {
		Active bool `json:"active"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	if err := h.console.SetActive(c.Request.Context(), payload.Active); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"active": payload.Active})
}
