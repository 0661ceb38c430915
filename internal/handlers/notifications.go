package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/propdesk/agent-console/internal/category"
	"github.com/propdesk/agent-console/internal/console"
	"github.com/propdesk/agent-console/internal/journal"
	"github.com/propdesk/agent-console/pkg/errors"
	"github.com/propdesk/agent-console/pkg/response"
)

// NotificationHandler exposes the reconciled notification state to UI tabs.
type NotificationHandler struct {
	console *console.Console
	journal *journal.Service
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(con *console.Console, jrnl *journal.Service) *NotificationHandler {
	return &NotificationHandler{console: con, journal: jrnl}
}

// State returns the full console state: per-category items and counts,
// presence, settings, and the alert signal.
func (h *NotificationHandler) State(c *gin.Context) {
	response.Success(c, http.StatusOK, h.console.CurrentState())
}

// Refresh re-polls the upstream pending backlog and returns the new state.
func (h *NotificationHandler) Refresh(c *gin.Context) {
	if err := h.console.RefreshPending(c.Request.Context()); err != nil {
		response.Error(c, errors.ErrUpstreamUnavailable.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, h.console.CurrentState())
}

// Accept resolves an item positively and returns the UI navigation target.
func (h *NotificationHandler) Accept(c *gin.Context) {
	h.resolve(c, console.OutcomeAccept)
}

// Reject resolves an item negatively.
func (h *NotificationHandler) Reject(c *gin.Context) {
	h.resolve(c, console.OutcomeReject)
}

func (h *NotificationHandler) resolve(c *gin.Context, outcome string) {
	cat, ok := category.Parse(c.Param("category"))
	if !ok {
		response.Error(c, errors.ErrUnknownCategory)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, errors.NewBadRequest("item id is required"))
		return
	}

	var payload struct {
		Pending bool `json:"pending"`
	}
	// The body is optional; absent means a non-pending item.
	_ = c.ShouldBindJSON(&payload)

	target, err := h.console.Resolve(c.Request.Context(), cat, id, payload.Pending, outcome)
	if err != nil {
		response.Error(c, err)
		return
	}

	body := gin.H{"resolved": true}
	if target != "" {
		body["navigate_to"] = target
	}
	response.Success(c, http.StatusOK, body)
}

// History lists recent journal entries, newest first.
func (h *NotificationHandler) History(c *gin.Context) {
	if h.journal == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	entries, err := h.journal.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}
