package realtime

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedClient(size int) *client {
	return &client{
		log:  slog.Default(),
		send: make(chan Frame, size),
		done: make(chan struct{}),
	}
}

func TestClient_AckWaitsForBufferSpace(t *testing.T) {
	c := newBufferedClient(1)
	c.enqueue(Frame{Op: OpMessage, Sub: "s1"})

	// A full buffer drops ordinary frames.
	c.enqueue(Frame{Op: OpMessage, Sub: "s1"})
	require.Len(t, c.send, 1)

	go func() {
		time.Sleep(50 * time.Millisecond)
		<-c.send
	}()
	require.True(t, c.ack(Frame{Op: OpSubscribed, Sub: "s2", Topic: "inbox:bob"}))

	got := <-c.send
	assert.Equal(t, OpSubscribed, got.Op)
	assert.Equal(t, "s2", got.Sub)
}

func TestClient_AckGivesUpWhenConnectionCloses(t *testing.T) {
	c := newBufferedClient(1)
	c.send <- Frame{Op: OpMessage}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(c.done)
	}()
	start := time.Now()
	assert.False(t, c.ack(Frame{Op: OpSubscribed, Sub: "s1"}))
	assert.Less(t, time.Since(start), ackWait)
}
