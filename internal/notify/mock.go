package notify

import (
	"context"
	"sync"
)

// Mock implements Notifier for testing. It records sent events and can be
// set to fail.
type Mock struct {
	mu     sync.Mutex
	sent   []Event
	err    error
	failOn string // fail only events of this kind when set
}

// NewMock creates a Mock notifier.
func NewMock() *Mock {
	return &Mock{}
}

// Fail makes all subsequent sends return err.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.failOn = ""
}

// FailKind makes sends of one event kind return err; other kinds succeed.
func (m *Mock) FailKind(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.failOn = kind
}

// Send records the event, or returns the configured error.
func (m *Mock) Send(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil && (m.failOn == "" || m.failOn == ev.Kind) {
		return m.err
	}
	m.sent = append(m.sent, ev)
	return nil
}

// Sent returns a copy of all recorded events.
func (m *Mock) Sent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns the number of recorded events.
func (m *Mock) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// LastSent returns the most recent event and whether one exists.
func (m *Mock) LastSent() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return Event{}, false
	}
	return m.sent[len(m.sent)-1], true
}
