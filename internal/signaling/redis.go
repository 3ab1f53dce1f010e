package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport maps topics onto Redis PUBLISH/SUBSCRIBE channels.
type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport { return &RedisTransport{rdb: rdb} }

func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	return t.rdb.Publish(ctx, topic, payload).Err()
}

// Subscribe waits for the SUBSCRIBE confirmation before returning.
func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := t.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go s.run(ps.Channel())
	return s, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) run(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(m.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
