package signaling

import (
	"context"
	"sync"

	"matchcall/internal/metrics"
)

// MemoryTransport is an in-process hub. Subscriptions are acknowledged
// immediately and a full subscriber buffer drops the message.
type MemoryTransport struct {
	mu     sync.Mutex
	topics map[string]map[*memorySubscription]struct{}
	buffer int
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{topics: map[string]map[*memorySubscription]struct{}{}, buffer: 64}
}

func (t *MemoryTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memorySubscription{hub: t, topic: topic, out: make(chan []byte, t.buffer)}
	t.mu.Lock()
	subs, ok := t.topics[topic]
	if !ok {
		subs = map[*memorySubscription]struct{}{}
		t.topics[topic] = subs
	}
	subs[s] = struct{}{}
	t.mu.Unlock()
	return s, nil
}

func (t *MemoryTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.topics[topic] {
		b := make([]byte, len(payload))
		copy(b, payload)
		select {
		case s.out <- b:
		default:
			metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropBackpressure).Inc()
		}
	}
	return nil
}

// Subscribers reports how many live subscriptions a topic has.
func (t *MemoryTransport) Subscribers(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.topics[topic])
}

type memorySubscription struct {
	hub   *MemoryTransport
	topic string
	out   chan []byte
	once  sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if subs, ok := s.hub.topics[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.hub.topics, s.topic)
			}
		}
		// Publish holds the hub lock while sending, so closing here cannot race a send.
		close(s.out)
		s.hub.mu.Unlock()
	})
	return nil
}
