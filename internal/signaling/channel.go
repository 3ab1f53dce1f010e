package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"matchcall/internal/metrics"
)

var (
	ErrClosed           = errors.New("signaling: channel closed")
	ErrSubscribeTimeout = errors.New("signaling: subscribe handshake timed out")
)

// DefaultSubscribeTimeout bounds the subscribe handshake when Dialer.SubscribeTimeout is zero.
const DefaultSubscribeTimeout = 5 * time.Second

// Dialer opens channels over a Transport.
type Dialer struct {
	Transport        Transport
	SubscribeTimeout time.Duration
	Logger           *slog.Logger
}

// Open subscribes to topic as user self. It returns only after the transport
// acknowledged the subscription, so a returned Channel may send immediately.
func (d Dialer) Open(ctx context.Context, topic, self string) (*Channel, error) {
	if d.Transport == nil || topic == "" || self == "" {
		return nil, ErrInvalidMessage
	}
	timeout := d.SubscribeTimeout
	if timeout <= 0 {
		timeout = DefaultSubscribeTimeout
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sub, err := d.Transport.Subscribe(subCtx, topic)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			metrics.SubscribeFailuresTotal.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w: %s", ErrSubscribeTimeout, topic)
		}
		metrics.SubscribeFailuresTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	c := &Channel{
		transport: d.Transport,
		topic:     topic,
		self:      self,
		sub:       sub,
		log:       log.With("topic", topic, "self", self),
		out:       make(chan Message, 32),
		done:      make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

// SendOnce opens topic, publishes m and closes. Used for replies to a call whose
// topic the sender never joined (busy, decline) and for inbox notifications.
func (d Dialer) SendOnce(ctx context.Context, topic, self string, m Message) error {
	c, err := d.Open(ctx, topic, self)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Send(ctx, m)
}

// Open is Dialer{Transport: t}.Open with default settings.
func Open(ctx context.Context, t Transport, topic, self string) (*Channel, error) {
	return Dialer{Transport: t}.Open(ctx, topic, self)
}

// Channel is one subscribed topic seen from one participant.
// Messages only yields well-formed messages addressed to self from someone else.
type Channel struct {
	transport Transport
	topic     string
	self      string
	sub       Subscription
	log       *slog.Logger

	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (c *Channel) Topic() string { return c.topic }
func (c *Channel) Self() string { return c.self }

// Send publishes m on the channel topic. From defaults to the local user.
func (c *Channel) Send(ctx context.Context, m Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if m.From == "" {
		m.From = c.self
	}
	if err := m.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := c.transport.Publish(ctx, c.topic, b); err != nil {
		return fmt.Errorf("publish %s: %w", m.Type, err)
	}
	metrics.SignalsPublishedTotal.WithLabelValues(string(m.Type)).Inc()
	return nil
}

// Messages is closed when the channel is closed or the subscription ends.
func (c *Channel) Messages() <-chan Message { return c.out }

// Close unsubscribes. It is safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.sub.Close()
	})
	return c.closeErr
}

func (c *Channel) pump() {
	defer close(c.out)
	in := c.sub.Messages()
	for {
		var raw []byte
		var ok bool
		select {
		case <-c.done:
			return
		case raw, ok = <-in:
			if !ok {
				return
			}
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil || m.Validate() != nil {
			metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropMalformed).Inc()
			c.log.Debug("dropping malformed signal")
			continue
		}
		if m.From == c.self {
			metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropSelfEcho).Inc()
			continue
		}
		if m.To != c.self {
			metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropMisaddressed).Inc()
			c.log.Debug("dropping misaddressed signal", "type", m.Type, "from", m.From, "to", m.To)
			continue
		}

		select {
		case c.out <- m:
		case <-c.done:
			return
		}
	}
}
