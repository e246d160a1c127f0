package ops

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recordAdapter records posted events and optionally fails.
type recordAdapter struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordAdapter) Post(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func TestMultiFansOut(t *testing.T) {
	a := &recordAdapter{}
	b := &recordAdapter{}
	m := NewMulti(a, b)

	ev := Event{Title: "ticket created", Severity: SeveritySuccess}
	if err := m.Post(context.Background(), ev); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events = %d, %d; want 1, 1", len(a.events), len(b.events))
	}
	if a.events[0].Title != "ticket created" {
		t.Errorf("title = %q", a.events[0].Title)
	}
}

func TestMultiOneFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordAdapter{err: errors.New("platform down")}
	good := &recordAdapter{}
	m := NewMulti(bad, good)

	if err := m.Post(context.Background(), Event{Title: "x"}); err != nil {
		t.Fatalf("Post() error = %v, want nil (best-effort)", err)
	}
	if len(good.events) != 1 {
		t.Errorf("good adapter events = %d, want 1", len(good.events))
	}
}

func TestMultiSkipsNil(t *testing.T) {
	m := NewMulti(nil, &recordAdapter{}, nil)
	if !m.Enabled() {
		t.Error("Enabled() = false, want true")
	}
	if got := len(m.adapters); got != 1 {
		t.Errorf("adapters = %d, want 1", got)
	}

	empty := NewMulti(nil)
	if empty.Enabled() {
		t.Error("Enabled() = true for empty Multi, want false")
	}
}
