package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/propdesk/agent-console/pkg/errors"
)

func performRequest(t *testing.T, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)
	return w
}

func TestSuccessEnvelope(t *testing.T) {
	w := performRequest(t, func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"count": 3})
	})

	require.Equal(t, http.StatusOK, w.Code)

	var payload Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Nil(t, payload.Error)
}

func TestErrorUsesAppErrorStatus(t *testing.T) {
	w := performRequest(t, func(c *gin.Context) {
		Error(c, appErrors.ErrAgentInactive)
	})

	require.Equal(t, http.StatusConflict, w.Code)

	var payload Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "AGENT_INACTIVE", payload.Error.Code)
}

func TestErrorDefaultsToInternalServer(t *testing.T) {
	w := performRequest(t, func(c *gin.Context) {
		Error(c, errors.New("unexpected"))
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestErrorNilFallback(t *testing.T) {
	w := performRequest(t, func(c *gin.Context) {
		Error(c, nil)
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
