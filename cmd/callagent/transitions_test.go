package main

import (
	"testing"

	"matchcall/internal/callclient"
)

func TestTransitions_FirstPerCallAndStatus(t *testing.T) {
	tr := newTransitions()
	ringing := callclient.Snapshot{Status: callclient.StatusRinging, CallID: "c1"}

	if !tr.first(ringing) {
		t.Fatalf("expected first ringing snapshot to be reported")
	}
	if tr.first(ringing) {
		t.Fatalf("expected repeated ringing snapshot to be ignored")
	}
	if !tr.first(callclient.Snapshot{Status: callclient.StatusActive, CallID: "c1"}) {
		t.Fatalf("expected active to be reported after ringing")
	}
	if tr.first(callclient.Snapshot{Status: callclient.StatusActive}) {
		t.Fatalf("expected snapshot without call id to be ignored")
	}
}

func TestTransitions_IdleClearsRecord(t *testing.T) {
	tr := newTransitions()
	for _, id := range []string{"c1", "c2", "c3"} {
		tr.first(callclient.Snapshot{Status: callclient.StatusRinging, CallID: id})
		tr.first(callclient.Snapshot{Status: callclient.StatusActive, CallID: id})
		if tr.first(callclient.Snapshot{Status: callclient.StatusIdle}) {
			t.Fatalf("idle must not be reported")
		}
		if n := len(tr.seen); n != 0 {
			t.Fatalf("expected record cleared on idle, got %d entries", n)
		}
	}

	// A call id seen before idle is acted on again.
	if !tr.first(callclient.Snapshot{Status: callclient.StatusRinging, CallID: "c1"}) {
		t.Fatalf("expected ringing to be reported again after idle")
	}
}
