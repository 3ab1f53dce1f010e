package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matchcall/internal/audit"
	"matchcall/internal/auth"
	"matchcall/internal/calls"
	"matchcall/internal/config"
	"matchcall/internal/signaling"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayEnv struct {
	url   string
	am    *auth.Manager
	hub   *signaling.MemoryTransport
	calls *calls.Service
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	hub := signaling.NewMemoryTransport()
	svc := calls.NewService(calls.NewMemoryRepo(), audit.NewService(audit.NewMemoryRepo()), nil)
	gw := NewGateway(hub, svc, nil)

	r := gin.New()
	r.GET("/v1/realtime", auth.RequireAccessToken(am), gw.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &gatewayEnv{
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime",
		am:    am,
		hub:   hub,
		calls: svc,
	}
}

func (e *gatewayEnv) dial(t *testing.T, userID string) *Transport {
	t.Helper()
	pair, err := e.am.IssuePair(time.Now(), userID, auth.RoleMember)
	require.NoError(t, err)
	tr, err := Dial(context.Background(), e.url, pair.AccessToken, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func recv(t *testing.T, ch *signaling.Channel) (signaling.Message, bool) {
	t.Helper()
	select {
	case m, ok := <-ch.Messages():
		return m, ok
	case <-time.After(500 * time.Millisecond):
		return signaling.Message{}, false
	}
}

func TestGateway_RelaysBetweenParticipants(t *testing.T) {
	e := newGatewayEnv(t)
	ctx := context.Background()
	s, err := e.calls.CreateSession(ctx, "alice", "bob", calls.CallTypeVideo)
	require.NoError(t, err)

	alice := signaling.Dialer{Transport: e.dial(t, "alice")}
	bob := signaling.Dialer{Transport: e.dial(t, "bob")}

	inbox, err := bob.Open(ctx, signaling.InboxTopic("bob"), "bob")
	require.NoError(t, err)
	defer inbox.Close()

	invite := signaling.Message{Type: signaling.KindIncomingCall, CallID: s.ID, To: "bob", CallType: calls.CallTypeVideo}
	require.NoError(t, alice.SendOnce(ctx, signaling.InboxTopic("bob"), "alice", invite))
	m, ok := recv(t, inbox)
	require.True(t, ok)
	assert.Equal(t, signaling.KindIncomingCall, m.Type)
	assert.Equal(t, "alice", m.From)

	aliceCall, err := alice.Open(ctx, signaling.CallTopic(s.ID), "alice")
	require.NoError(t, err)
	defer aliceCall.Close()
	bobCall, err := bob.Open(ctx, signaling.CallTopic(s.ID), "bob")
	require.NoError(t, err)
	defer bobCall.Close()

	require.NoError(t, bobCall.Send(ctx, signaling.Message{Type: signaling.KindAccepted, CallID: s.ID, To: "alice"}))
	m, ok = recv(t, aliceCall)
	require.True(t, ok)
	assert.Equal(t, signaling.KindAccepted, m.Type)
	assert.Equal(t, "bob", m.From)
}

func TestGateway_StampsSenderIdentity(t *testing.T) {
	e := newGatewayEnv(t)
	ctx := context.Background()
	s, err := e.calls.CreateSession(ctx, "alice", "bob", calls.CallTypeAudio)
	require.NoError(t, err)

	// bob listens on the raw bus to see exactly what the gateway published.
	raw, err := signaling.Open(ctx, e.hub, signaling.CallTopic(s.ID), "bob")
	require.NoError(t, err)
	defer raw.Close()

	alice := e.dial(t, "alice")
	forged := []byte(`{"type":"call-ended","call_id":"` + s.ID + `","from":"bob-impersonator","to":"bob"}`)
	require.NoError(t, alice.Publish(ctx, signaling.CallTopic(s.ID), forged))

	m, ok := recv(t, raw)
	require.True(t, ok)
	assert.Equal(t, "alice", m.From)
}

func TestGateway_RejectsNonParticipants(t *testing.T) {
	e := newGatewayEnv(t)
	ctx := context.Background()
	s, err := e.calls.CreateSession(ctx, "alice", "bob", calls.CallTypeAudio)
	require.NoError(t, err)

	mallory := e.dial(t, "mallory")
	_, err = mallory.Subscribe(ctx, signaling.CallTopic(s.ID))
	require.Error(t, err)
	_, err = mallory.Subscribe(ctx, "presence:bob")
	require.Error(t, err)

	// Publishing into bob's inbox about a call mallory is not on never reaches the bus.
	inbox, err := signaling.Open(ctx, e.hub, signaling.InboxTopic("bob"), "bob")
	require.NoError(t, err)
	defer inbox.Close()
	spoof := []byte(`{"type":"call-ended","call_id":"` + s.ID + `","from":"alice","to":"bob"}`)
	require.NoError(t, mallory.Publish(ctx, signaling.InboxTopic("bob"), spoof))
	_, ok := recv(t, inbox)
	assert.False(t, ok)
}

func TestGateway_InboxDeliveryIsFilteredToOwner(t *testing.T) {
	e := newGatewayEnv(t)
	ctx := context.Background()
	s, err := e.calls.CreateSession(ctx, "alice", "bob", calls.CallTypeAudio)
	require.NoError(t, err)

	snoop, err := signaling.Dialer{Transport: e.dial(t, "mallory")}.Open(ctx, signaling.InboxTopic("bob"), "mallory")
	require.NoError(t, err)
	defer snoop.Close()

	invite := signaling.Message{Type: signaling.KindIncomingCall, CallID: s.ID, To: "bob", CallType: calls.CallTypeAudio}
	require.NoError(t, signaling.Dialer{Transport: e.dial(t, "alice")}.SendOnce(ctx, signaling.InboxTopic("bob"), "alice", invite))

	_, ok := recv(t, snoop)
	assert.False(t, ok)
}

func TestGateway_RequiresToken(t *testing.T) {
	e := newGatewayEnv(t)
	_, resp, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransport_SubscriptionsCloseWithConnection(t *testing.T) {
	e := newGatewayEnv(t)
	ctx := context.Background()
	tr := e.dial(t, "alice")

	sub, err := tr.Subscribe(ctx, signaling.InboxTopic("alice"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.hub.Subscribers(signaling.InboxTopic("alice")) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Close())
	select {
	case _, ok := <-sub.Messages():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	require.Eventually(t, func() bool { return e.hub.Subscribers(signaling.InboxTopic("alice")) == 0 }, time.Second, 5*time.Millisecond)
}

func TestGateway_RateLimitsPublishes(t *testing.T) {
	e := newGatewayEnv(t)
	ctx := context.Background()
	s, err := e.calls.CreateSession(ctx, "alice", "bob", calls.CallTypeVideo)
	require.NoError(t, err)

	pair, err := e.am.IssuePair(time.Now(), "alice", auth.RoleMember)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("Authorization", "Bearer "+pair.AccessToken)
	conn, _, err := websocket.DefaultDialer.Dial(e.url, h)
	require.NoError(t, err)
	defer conn.Close()

	cand := signaling.Message{Type: signaling.KindICECandidate, CallID: s.ID, To: "bob", Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1"}}
	for i := 0; i < publishBurst*2; i++ {
		require.NoError(t, conn.WriteJSON(Frame{Op: OpPublish, Topic: signaling.CallTopic(s.ID), Message: &cand}))
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Op == OpError {
			assert.Equal(t, "rate limited", f.Error)
			return
		}
	}
}
