package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/propdesk/agent-console/internal/auth"
	"github.com/propdesk/agent-console/internal/credentials"
	"github.com/propdesk/agent-console/internal/models"
	apperrors "github.com/propdesk/agent-console/pkg/errors"
	"github.com/propdesk/agent-console/pkg/response"
)

// SessionHandler manages the seat's upstream credential mirror and issues
// local UI session tokens against it.
type SessionHandler struct {
	creds *credentials.Store
	jwt   *iauth.JWTService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(creds *credentials.Store, jwt *iauth.JWTService) *SessionHandler {
	return &SessionHandler{creds: creds, jwt: jwt}
}

// Configure stores the upstream credential for this seat. The daemon binds to
// loopback, so the endpoint is reachable only from the local machine.
func (h *SessionHandler) Configure(c *gin.Context) {
	var payload struct {
		ExecutiveID string `json:"executive_id" validate:"required"`
		Token       string `json:"token" validate:"required"`
		FullName    string `json:"full_name"`
		MobileNo    string `json:"mobile_no"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	err := h.creds.Save(c.Request.Context(), models.Credential{
		ExecutiveID: payload.ExecutiveID,
		Token:       payload.Token,
		FullName:    payload.FullName,
		MobileNo:    payload.MobileNo,
	})
	if err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"configured": true})
}

// Login exchanges the stored credential for a UI session token.
func (h *SessionHandler) Login(c *gin.Context) {
	cred, err := h.creds.Load(c.Request.Context())
	if errors.Is(err, credentials.ErrNotConfigured) {
		response.Error(c, apperrors.New("NOT_CONFIGURED", "Seat credentials are not configured", http.StatusConflict))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateSessionToken(cred.ExecutiveID, cred.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":        token,
		"executive_id": cred.ExecutiveID,
		"full_name":    cred.FullName,
	})
}
