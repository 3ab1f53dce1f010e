package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"matchcall/internal/auth"
	"matchcall/internal/calls"
	"matchcall/internal/metrics"
	"matchcall/internal/signaling"
	"matchcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var errForbidden = errors.New("forbidden")

// Sessions is the read side of the session store used for topic authorization.
type Sessions interface {
	Get(ctx context.Context, id string) (calls.Session, error)
}

// Gateway bridges authenticated websocket connections onto a signaling.Transport.
//
// Subscriptions to call topics require being on the call. Inbox topics can be
// joined by anyone because delivery is always filtered to messages addressed
// to the connected user. Publishes are stamped with the connected user as From.
type Gateway struct {
	transport signaling.Transport
	sessions  Sessions
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

func NewGateway(t signaling.Transport, sessions Sessions, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		transport: t,
		sessions:  sessions,
		log:       log.With("component", "realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are native apps and the call agent; browsers are not served here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request. It must run behind auth.RequireAccessToken.
func (g *Gateway) Handle(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.FromGin(c).Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	cl := &client{
		g:      g,
		conn:   conn,
		userID: userID,
		log:    g.log.With("user_id", userID),
		send:   make(chan Frame, sendBufferSize),
		done:   make(chan struct{}),
		subs:   map[string]signaling.Subscription{},
		limit:  rate.NewLimiter(rate.Limit(publishRate), publishBurst),
	}
	metrics.RealtimeConnections.Inc()
	defer metrics.RealtimeConnections.Dec()

	go cl.writePump()
	cl.readPump()
}

func (g *Gateway) canSubscribe(ctx context.Context, userID, topic string) error {
	if _, ok := signaling.ParseInboxTopic(topic); ok {
		return nil
	}
	if callID, ok := signaling.ParseCallTopic(topic); ok {
		s, err := g.sessions.Get(ctx, callID)
		if err != nil || !s.HasParticipant(userID) {
			return errForbidden
		}
		return nil
	}
	return errForbidden
}

func (g *Gateway) canPublish(ctx context.Context, userID, topic string, m signaling.Message) error {
	s, err := g.sessions.Get(ctx, m.CallID)
	if err != nil || !s.HasParticipant(userID) || m.To != s.Peer(userID) {
		return errForbidden
	}
	if callID, ok := signaling.ParseCallTopic(topic); ok && callID == m.CallID {
		return nil
	}
	if owner, ok := signaling.ParseInboxTopic(topic); ok && owner == m.To {
		return nil
	}
	return errForbidden
}

type client struct {
	g      *Gateway
	conn   *websocket.Conn
	userID string
	log    *slog.Logger

	send  chan Frame
	done  chan struct{}
	limit *rate.Limiter

	mu   sync.Mutex
	subs map[string]signaling.Subscription
}

func (c *client) readPump() {
	defer func() {
		c.mu.Lock()
		for id, s := range c.subs {
			_ = s.Close()
			delete(c.subs, id)
		}
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("websocket closed unexpectedly", "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.enqueue(Frame{Op: OpError, Error: "invalid frame"})
			continue
		}
		switch f.Op {
		case OpSubscribe:
			c.subscribe(f)
		case OpUnsubscribe:
			c.unsubscribe(f.Sub)
		case OpPublish:
			c.publish(f)
		default:
			c.enqueue(Frame{Op: OpError, Sub: f.Sub, Error: "unknown op"})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.log.Debug("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue drops the frame when the client is not keeping up.
func (c *client) enqueue(f Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropBackpressure).Inc()
		c.log.Warn("dropping frame for slow client", "op", f.Op, "topic", f.Topic)
	}
}

// ack delivers a subscribe reply. The caller blocks on it, so the frame waits
// up to ackWait for buffer space instead of being dropped.
func (c *client) ack(f Frame) bool {
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
	}
	t := time.NewTimer(ackWait)
	defer t.Stop()
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	case <-t.C:
		metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropBackpressure).Inc()
		c.log.Warn("dropping ack for slow client", "op", f.Op, "sub", f.Sub)
		return false
	}
}

func (c *client) subscribe(f Frame) {
	if f.Sub == "" || f.Topic == "" {
		c.ack(Frame{Op: OpError, Sub: f.Sub, Error: "sub and topic required"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	if err := c.g.canSubscribe(ctx, c.userID, f.Topic); err != nil {
		c.ack(Frame{Op: OpError, Sub: f.Sub, Topic: f.Topic, Error: err.Error()})
		return
	}
	sub, err := c.g.transport.Subscribe(ctx, f.Topic)
	if err != nil {
		c.log.Warn("bus subscribe failed", "topic", f.Topic, "err", err)
		c.ack(Frame{Op: OpError, Sub: f.Sub, Topic: f.Topic, Error: "subscribe failed"})
		return
	}

	c.mu.Lock()
	if old, ok := c.subs[f.Sub]; ok {
		_ = old.Close()
	}
	c.subs[f.Sub] = sub
	c.mu.Unlock()

	c.ack(Frame{Op: OpSubscribed, Sub: f.Sub, Topic: f.Topic})
	go c.forward(f.Sub, f.Topic, sub)
}

func (c *client) forward(subID, topic string, sub signaling.Subscription) {
	for raw := range sub.Messages() {
		var m signaling.Message
		if err := json.Unmarshal(raw, &m); err != nil || m.Validate() != nil {
			metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropMalformed).Inc()
			continue
		}
		if m.To != c.userID {
			continue
		}
		c.enqueue(Frame{Op: OpMessage, Sub: subID, Topic: topic, Message: &m})
	}
}

func (c *client) unsubscribe(subID string) {
	c.mu.Lock()
	sub, ok := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()
	if ok {
		_ = sub.Close()
	}
}

func (c *client) publish(f Frame) {
	if f.Message == nil || f.Topic == "" {
		c.enqueue(Frame{Op: OpError, Topic: f.Topic, Error: "topic and message required"})
		return
	}
	if !c.limit.Allow() {
		metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropRateLimited).Inc()
		c.enqueue(Frame{Op: OpError, Topic: f.Topic, Error: "rate limited"})
		return
	}
	m := *f.Message
	m.From = c.userID
	if err := m.Validate(); err != nil {
		c.enqueue(Frame{Op: OpError, Topic: f.Topic, Error: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.g.canPublish(ctx, c.userID, f.Topic, m); err != nil {
		c.enqueue(Frame{Op: OpError, Topic: f.Topic, Error: err.Error()})
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.g.transport.Publish(ctx, f.Topic, raw); err != nil {
		c.log.Warn("bus publish failed", "topic", f.Topic, "err", err)
		c.enqueue(Frame{Op: OpError, Topic: f.Topic, Error: "publish failed"})
		return
	}
	metrics.SignalsPublishedTotal.WithLabelValues(string(m.Type)).Inc()
}
