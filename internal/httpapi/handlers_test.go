package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"matchcall/internal/audit"
	"matchcall/internal/auth"
	"matchcall/internal/calls"
	"matchcall/internal/config"
	"matchcall/internal/directory"
	"matchcall/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router *gin.Engine
	calls  *calls.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	am, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	repo := calls.NewMemoryRepo()
	events := audit.NewService(audit.NewMemoryRepo())
	svc := calls.NewService(repo, events, nil)
	h := Handlers{
		Auth:     am,
		Calls:    svc,
		Audit:    events,
		Reports:  reporting.NewService(repo),
		Profiles: directory.NewMemoryDirectory(directory.Profile{ID: "bob", DisplayName: "Bob"}),
	}

	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)
	v1 := r.Group("/v1", auth.RequireAccessToken(am))
	v1.GET("/me", h.Me)
	v1.POST("/calls", h.CreateCall)
	v1.GET("/calls", h.ListCalls)
	v1.GET("/calls/summary", h.CallsSummary)
	v1.GET("/calls/:id", h.GetCall)
	v1.POST("/calls/:id/active", h.MarkActive)
	v1.POST("/calls/:id/terminal", h.MarkTerminal)
	v1.GET("/calls/:id/events", h.CallEvents)
	v1.GET("/profiles/:user_id", h.GetProfile)
	return &testAPI{router: r, calls: svc}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T, userID string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"user_id": userID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	return pair.AccessToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestLoginAndRefresh(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"user_id": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	pair := decode[auth.TokenPair](t, w)

	w = a.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/v1/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]string](t, w)
	assert.Equal(t, "alice", me["user_id"])
	assert.Equal(t, auth.RoleMember, me["role"])
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	alice := a.login(t, "alice")
	bob := a.login(t, "bob")

	w := a.do(t, http.MethodPost, "/v1/calls", alice, gin.H{"receiver_id": "bob", "call_type": "video"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	s := decode[calls.Session](t, w)
	assert.Equal(t, "alice", s.CallerID)
	assert.Equal(t, calls.StatusRinging, s.Status)

	w = a.do(t, http.MethodPost, "/v1/calls/"+s.ID+"/active", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, calls.StatusActive, decode[calls.Session](t, w).Status)

	end := gin.H{"status": "ended", "reason": calls.ReasonUserHangup, "duration_seconds": 42}
	w = a.do(t, http.MethodPost, "/v1/calls/"+s.ID+"/terminal", alice, end)
	require.Equal(t, http.StatusOK, w.Code)

	// The second participant's report is absorbed.
	lost := gin.H{"status": "ended", "reason": calls.ReasonConnectionLost, "duration_seconds": 40}
	w = a.do(t, http.MethodPost, "/v1/calls/"+s.ID+"/terminal", bob, lost)
	require.Equal(t, http.StatusOK, w.Code)
	final := decode[calls.Session](t, w)
	assert.Equal(t, calls.ReasonUserHangup, final.EndReason)
	require.NotNil(t, final.DurationSeconds)
	assert.Equal(t, 42, *final.DurationSeconds)

	w = a.do(t, http.MethodGet, "/v1/calls/"+s.ID+"/events", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode[struct {
		Events []audit.Event `json:"events"`
	}](t, w)
	require.Len(t, timeline.Events, 3)
	assert.Equal(t, audit.EventTypeTerminated, timeline.Events[2].Type)
	assert.Equal(t, "alice", timeline.Events[2].ActorUserID)
}

func TestCallAccessIsLimitedToParticipants(t *testing.T) {
	a := newTestAPI(t)
	alice := a.login(t, "alice")
	mallory := a.login(t, "mallory")

	w := a.do(t, http.MethodPost, "/v1/calls", alice, gin.H{"receiver_id": "bob", "call_type": "audio"})
	require.Equal(t, http.StatusCreated, w.Code)
	s := decode[calls.Session](t, w)

	for _, path := range []string{"/v1/calls/" + s.ID, "/v1/calls/" + s.ID + "/events"} {
		w = a.do(t, http.MethodGet, path, mallory, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w = a.do(t, http.MethodPost, "/v1/calls/"+s.ID+"/terminal", mallory, gin.H{"status": "missed"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/v1/calls/"+s.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateCallValidation(t *testing.T) {
	a := newTestAPI(t)
	alice := a.login(t, "alice")

	w := a.do(t, http.MethodPost, "/v1/calls", alice, gin.H{"receiver_id": "alice", "call_type": "audio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(t, http.MethodPost, "/v1/calls", alice, gin.H{"receiver_id": "bob", "call_type": "screen"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/v1/calls", alice, gin.H{"receiver_id": "bob", "call_type": "audio"})
	require.Equal(t, http.StatusCreated, w.Code)
	s := decode[calls.Session](t, w)
	w = a.do(t, http.MethodPost, "/v1/calls/"+s.ID+"/terminal", alice, gin.H{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryAndSummary(t *testing.T) {
	a := newTestAPI(t)
	alice := a.login(t, "alice")

	for _, typ := range []string{"audio", "video"} {
		w := a.do(t, http.MethodPost, "/v1/calls", alice, gin.H{"receiver_id": "bob", "call_type": typ})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := a.do(t, http.MethodGet, "/v1/calls", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Calls []calls.Session `json:"calls"`
	}](t, w)
	assert.Len(t, list.Calls, 2)

	w = a.do(t, http.MethodGet, "/v1/calls/summary", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[reporting.CallsSummary](t, w)
	assert.Equal(t, 2, sum.TotalCalls)
	assert.Equal(t, 2, sum.OutgoingCalls)
	assert.Equal(t, 1, sum.VideoCalls)
	assert.Equal(t, 2, sum.OpenCalls)

	w = a.do(t, http.MethodGet, "/v1/calls?from=yesterday", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = a.do(t, http.MethodGet, "/v1/calls/summary?from=2030-01-02T00:00:00Z&to=2030-01-01T00:00:00Z", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProfile(t *testing.T) {
	a := newTestAPI(t)
	alice := a.login(t, "alice")

	w := a.do(t, http.MethodGet, "/v1/profiles/bob", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bob", decode[directory.Profile](t, w).DisplayName)

	w = a.do(t, http.MethodGet, "/v1/profiles/nobody", alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
