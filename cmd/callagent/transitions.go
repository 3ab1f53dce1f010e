package main

import (
	"sync"

	"matchcall/internal/callclient"
)

// transitions remembers which status each call has already been acted on in.
// The record is dropped whenever the machine settles back to idle, so a
// long-running agent holds at most one call's worth of entries.
type transitions struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newTransitions() *transitions {
	return &transitions{seen: map[string]bool{}}
}

// first reports whether s is the first snapshot for its call and status.
func (t *transitions) first(s callclient.Snapshot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Status == callclient.StatusIdle {
		clear(t.seen)
		return false
	}
	if s.CallID == "" {
		return false
	}
	key := string(s.Status) + ":" + s.CallID
	if t.seen[key] {
		return false
	}
	t.seen[key] = true
	return true
}
