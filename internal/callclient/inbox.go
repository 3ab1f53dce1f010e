package callclient

import (
	"context"
	"errors"
	"sync"

	"matchcall/internal/signaling"
)

var ErrInboxRunning = errors.New("callclient: inbox listener already running")

// Inbox feeds the user's inbox topic into a Machine. There is one per
// Machine for its whole life; once stopped it is not resubscribed.
type Inbox struct {
	machine *Machine
	channel *signaling.Channel

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// StartInbox subscribes to the inbox and returns after the subscription is
// acknowledged, so invites published afterwards are never missed.
func StartInbox(ctx context.Context, m *Machine) (*Inbox, error) {
	if !m.inboxOn.CompareAndSwap(false, true) {
		return nil, ErrInboxRunning
	}
	ch, err := m.deps.Dialer.Open(ctx, signaling.InboxTopic(m.self), m.self)
	if err != nil {
		m.inboxOn.Store(false)
		return nil, err
	}
	in := &Inbox{machine: m, channel: ch, done: make(chan struct{})}
	go in.run()
	m.log.Info("inbox listening")
	return in, nil
}

func (in *Inbox) run() {
	defer close(in.done)
	for msg := range in.channel.Messages() {
		msg := msg
		if !in.machine.post(func() { in.machine.handleInbox(msg) }) {
			return
		}
	}
}

// Stop unsubscribes and waits for the listener to exit. Safe to call more than once.
func (in *Inbox) Stop() error {
	in.stopOnce.Do(func() {
		in.stopErr = in.channel.Close()
		<-in.done
		in.machine.log.Info("inbox stopped")
	})
	return in.stopErr
}
