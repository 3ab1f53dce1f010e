package apiclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"matchcall/internal/audit"
	"matchcall/internal/auth"
	"matchcall/internal/calls"
	"matchcall/internal/config"
	"matchcall/internal/directory"
	"matchcall/internal/httpapi"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ calls.Store         = (*Client)(nil)
	_ directory.Directory = (*Client)(nil)
)

func newServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	h := httpapi.Handlers{
		Auth:     am,
		Calls:    calls.NewService(calls.NewMemoryRepo(), audit.NewService(audit.NewMemoryRepo()), nil),
		Profiles: directory.NewMemoryDirectory(directory.Profile{ID: "bob", DisplayName: "Bob"}),
	}
	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)
	v1 := r.Group("/v1", auth.RequireAccessToken(am))
	v1.POST("/calls", h.CreateCall)
	v1.GET("/calls/:id", h.GetCall)
	v1.POST("/calls/:id/active", h.MarkActive)
	v1.POST("/calls/:id/terminal", h.MarkTerminal)
	v1.GET("/profiles/:user_id", h.GetProfile)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestClient_SessionLifecycle(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()

	alice := New(url, time.Second)
	_, err := alice.Login(ctx, "alice")
	require.NoError(t, err)
	bob := New(url, time.Second)
	_, err = bob.Login(ctx, "bob")
	require.NoError(t, err)

	s, err := alice.CreateSession(ctx, "alice", "bob", calls.CallTypeVideo)
	require.NoError(t, err)
	assert.Equal(t, calls.StatusRinging, s.Status)

	active, err := bob.MarkActive(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, calls.StatusActive, active.Status)

	ended, err := alice.MarkTerminal(ctx, s.ID, calls.StatusEnded, calls.ReasonUserHangup, 42)
	require.NoError(t, err)
	require.NotNil(t, ended.DurationSeconds)
	assert.Equal(t, 42, *ended.DurationSeconds)

	again, err := bob.MarkTerminal(ctx, s.ID, calls.StatusEnded, calls.ReasonConnectionLost, 41)
	require.NoError(t, err)
	assert.Equal(t, calls.ReasonUserHangup, again.EndReason)

	got, err := bob.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, calls.StatusEnded, got.Status)
}

func TestClient_MapsErrors(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()

	anon := New(url, time.Second)
	_, err := anon.CreateSession(ctx, "alice", "bob", calls.CallTypeAudio)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = anon.Refresh(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)

	c := New(url, time.Second)
	_, err = c.Login(ctx, "alice")
	require.NoError(t, err)

	_, err = c.CreateSession(ctx, "alice", "alice", calls.CallTypeAudio)
	assert.ErrorIs(t, err, calls.ErrInvalidArgument)
	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, calls.ErrNotFound)
	_, err = c.Profile(ctx, "nobody")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	p, err := c.Profile(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.DisplayName)

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	_, err = c.CreateSession(ctx, "alice", "bob", calls.CallTypeAudio)
	require.NoError(t, err)
}
