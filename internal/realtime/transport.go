package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"matchcall/internal/signaling"

	"github.com/gorilla/websocket"
)

var ErrDisconnected = errors.New("realtime: connection closed")

// Transport is a signaling.Transport over one gateway websocket.
type Transport struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan error
	subs    map[string]*wsSubscription

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the gateway at url (ws:// or wss://) with an access token.
func Dial(ctx context.Context, url, accessToken string, log *slog.Logger) (*Transport, error) {
	if log == nil {
		log = slog.Default()
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", url, err)
	}
	t := &Transport{
		conn:    conn,
		log:     log.With("component", "realtime_client"),
		pending: map[string]chan error{},
		subs:    map[string]*wsSubscription{},
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Subscribe returns after the gateway confirmed the subscription.
func (t *Transport) Subscribe(ctx context.Context, topic string) (signaling.Subscription, error) {
	id := strconv.FormatUint(t.nextID.Add(1), 10)
	ack := make(chan error, 1)
	s := &wsSubscription{t: t, id: id, out: make(chan []byte, sendBufferSize)}

	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return nil, ErrDisconnected
	default:
	}
	t.pending[id] = ack
	t.subs[id] = s
	t.mu.Unlock()

	if err := t.write(Frame{Op: OpSubscribe, Sub: id, Topic: topic}); err != nil {
		t.forget(id)
		return nil, err
	}
	select {
	case err := <-ack:
		if err != nil {
			t.forget(id)
			return nil, fmt.Errorf("realtime: subscribe %s: %w", topic, err)
		}
		return s, nil
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrDisconnected
	}
}

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	var m signaling.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("realtime: publish %s: %w", topic, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.write(Frame{Op: OpPublish, Topic: topic, Message: &m})
}

// Close drops the connection and every subscription on it.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	t.writeMu.Unlock()
	return t.conn.Close()
}

// Done is closed when the connection is gone.
func (t *Transport) Done() <-chan struct{} { return t.done }

func (t *Transport) write(f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.done:
		return ErrDisconnected
	default:
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(f)
}

func (t *Transport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	if s, ok := t.subs[id]; ok {
		delete(t.subs, id)
		s.closeOut()
	}
	t.mu.Unlock()
}

func (t *Transport) readLoop() {
	defer t.shutdown()
	for {
		var f Frame
		if err := t.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				t.log.Warn("gateway connection lost", "err", err)
			}
			return
		}
		switch f.Op {
		case OpSubscribed:
			t.resolve(f.Sub, nil)
		case OpError:
			if f.Sub != "" && t.resolve(f.Sub, errors.New(f.Error)) {
				continue
			}
			t.log.Warn("gateway error", "topic", f.Topic, "error", f.Error)
		case OpMessage:
			t.deliver(f)
		}
	}
}

func (t *Transport) resolve(id string, err error) bool {
	t.mu.Lock()
	ack, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()
	if ok {
		ack <- err
	}
	return ok
}

func (t *Transport) deliver(f Frame) {
	if f.Message == nil {
		return
	}
	raw, err := json.Marshal(f.Message)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.subs[f.Sub]
	if !ok {
		return
	}
	select {
	case s.out <- raw:
	default:
		t.log.Warn("dropping message for slow subscriber", "topic", f.Topic)
	}
}

func (t *Transport) shutdown() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		close(t.done)
		for id, s := range t.subs {
			delete(t.subs, id)
			s.closeOut()
		}
		t.pending = map[string]chan error{}
		t.mu.Unlock()
		_ = t.conn.Close()
	})
}

type wsSubscription struct {
	t   *Transport
	id  string
	out chan []byte

	once    sync.Once
	outOnce sync.Once
}

func (s *wsSubscription) Messages() <-chan []byte { return s.out }

func (s *wsSubscription) Close() error {
	s.once.Do(func() {
		s.t.forget(s.id)
		_ = s.t.write(Frame{Op: OpUnsubscribe, Sub: s.id})
	})
	return nil
}

// closeOut is called with t.mu held.
func (s *wsSubscription) closeOut() {
	s.outOnce.Do(func() { close(s.out) })
}
