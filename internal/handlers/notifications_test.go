package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/agent-console/internal/category"
	"github.com/propdesk/agent-console/internal/console"
	"github.com/propdesk/agent-console/internal/database/testutil"
	"github.com/propdesk/agent-console/internal/journal"
)

type stubBackend struct {
	pending map[string][]map[string]interface{}
	fail    bool
}

func (s *stubBackend) NewRequestCount(context.Context) (int, error) { return 0, nil }

func (s *stubBackend) PendingItems(context.Context) (map[string][]map[string]interface{}, error) {
	return s.pending, nil
}

func (s *stubBackend) PendingItemsFor(context.Context, string) (map[string][]map[string]interface{}, error) {
	return s.pending, nil
}

func (s *stubBackend) UpdateLoginTime(context.Context, map[string]bool) error  { return nil }
func (s *stubBackend) UpdateLogoutTime(context.Context, map[string]bool) error { return nil }
func (s *stubBackend) UpdateNotificationSettings(context.Context, map[string]bool) error {
	return nil
}

func (s *stubBackend) Accept(context.Context, string, string) error {
	if s.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *stubBackend) Reject(context.Context, string, string) error {
	if s.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func newTestRouter(t *testing.T, backend *stubBackend) (*gin.Engine, *console.Console) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	jrnl, err := journal.NewService(db)
	require.NoError(t, err)

	con, err := console.New(console.Config{}, console.Deps{
		DB:      db,
		Backend: backend,
		Journal: jrnl,
	})
	require.NoError(t, err)
	require.NoError(t, con.SetActive(context.Background(), true))

	nh := NewNotificationHandler(con, jrnl)
	sh := NewSettingsHandler(con)
	ph := NewPresenceHandler(con)

	r := gin.New()
	r.GET("/notifications", nh.State)
	r.POST("/notifications/refresh", nh.Refresh)
	r.POST("/notifications/:category/:id/accept", nh.Accept)
	r.POST("/notifications/:category/:id/reject", nh.Reject)
	r.GET("/notifications/history", nh.History)
	r.GET("/settings", sh.List)
	r.POST("/settings/:category/toggle", sh.Toggle)
	r.GET("/presence", ph.Get)
	r.PUT("/presence", ph.Set)
	return r, con
}

func liveItem(t *testing.T, con *console.Console, id string) {
	t.Helper()
	d, ok := category.Lookup(category.Agents)
	require.True(t, ok)
	con.HandleLiveEvent(d, map[string]interface{}{"_id": id})
}

func TestStateEndpoint(t *testing.T) {
	r, con := newTestRouter(t, &stubBackend{})
	liveItem(t, con, "a1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Active   bool `json:"active"`
			Snapshot struct {
				Total int `json:"total"`
			} `json:"snapshot"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.True(t, body.Data.Active)
	require.Equal(t, 1, body.Data.Snapshot.Total)
}

func TestAcceptEndpointReturnsNavigationTarget(t *testing.T) {
	r, con := newTestRouter(t, &stubBackend{})
	liveItem(t, con, "a1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notifications/agents/a1/accept", strings.NewReader(`{"pending":false}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Resolved   bool   `json:"resolved"`
			NavigateTo string `json:"navigate_to"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Data.Resolved)
	require.Equal(t, "/agents", body.Data.NavigateTo)
}

func TestAcceptUnknownCategory(t *testing.T) {
	r, _ := newTestRouter(t, &stubBackend{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/notifications/bogus/a1/accept", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectMissingItemIs404(t *testing.T) {
	r, _ := newTestRouter(t, &stubBackend{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/notifications/agents/nope/reject", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAcceptUpstreamFailureIs502(t *testing.T) {
	backend := &stubBackend{}
	r, con := newTestRouter(t, backend)
	liveItem(t, con, "a1")

	backend.fail = true
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/notifications/agents/a1/accept", nil))
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestToggleWhileInactiveIsConflict(t *testing.T) {
	r, con := newTestRouter(t, &stubBackend{})
	require.NoError(t, con.SetActive(context.Background(), false))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/settings/customers/toggle", nil))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSettingsListCoversEveryCategory(t *testing.T) {
	r, _ := newTestRouter(t, &stubBackend{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []struct {
			Category string `json:"category"`
			Enabled  bool   `json:"enabled"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, len(category.Categories()))
	for _, entry := range body.Data {
		require.True(t, entry.Enabled)
	}
}

func TestPresenceRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t, &stubBackend{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/presence", strings.NewReader(`{"active":false}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/presence", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Active bool `json:"active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Data.Active)
}

func TestHistoryReturnsJournalEntries(t *testing.T) {
	r, con := newTestRouter(t, &stubBackend{})
	liveItem(t, con, "a1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications/history?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []struct {
			ItemID string `json:"item_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "a1", body.Data[0].ItemID)
}
