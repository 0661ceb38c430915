package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propdesk/agent-console/internal/category"
	"github.com/propdesk/agent-console/internal/console"
	"github.com/propdesk/agent-console/pkg/errors"
	"github.com/propdesk/agent-console/pkg/response"
)

// SettingsHandler exposes the per-category alert gate.
type SettingsHandler struct {
	console *console.Console
}

// NewSettingsHandler constructs a settings handler.
func NewSettingsHandler(con *console.Console) *SettingsHandler {
	return &SettingsHandler{console: con}
}

// List returns every category with its label and current gate value.
func (h *SettingsHandler) List(c *gin.Context) {
	settings := h.console.Settings()

	type entry struct {
		Category category.Category `json:"category"`
		Label    string            `json:"label"`
		Enabled  bool              `json:"enabled"`
	}
	out := make([]entry, 0, len(settings))
	for _, d := range category.All() {
		out = append(out, entry{Category: d.Category, Label: d.Label, Enabled: settings[d.Category]})
	}
	response.Success(c, http.StatusOK, out)
}

// Toggle flips one category's gate. Requires an active agent.
func (h *SettingsHandler) Toggle(c *gin.Context) {
	cat, ok := category.Parse(c.Param("category"))
	if !ok {
		response.Error(c, errors.ErrUnknownCategory)
		return
	}

	enabled, err := h.console.ToggleSetting(c.Request.Context(), cat)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"category": cat, "enabled": enabled})
}
