// Package ops posts pipeline events (ticket created, ticket closed,
// reconcile failures) to an operations channel so the support team sees
// the automation working without tailing logs.
package ops

import (
	"context"
	"log"
)

// Severities understood by the adapters; they map to sidebar colors.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Field is a key-value pair rendered with an event.
type Field struct {
	Name  string
	Value string
}

// Event is one operations-channel post.
type Event struct {
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Adapter posts an event to a single platform.
type Adapter interface {
	Post(ctx context.Context, ev Event) error
}

// Multi fans an event out to several adapters. Posting is best-effort:
// one platform failing does not stop the others, and errors are logged,
// never returned to the pipeline.
type Multi struct {
	adapters []Adapter
}

// NewMulti creates a fan-out over the given adapters. Nil adapters are
// skipped so callers can pass optionally-configured platforms directly.
func NewMulti(adapters ...Adapter) *Multi {
	m := &Multi{}
	for _, a := range adapters {
		if a != nil {
			m.adapters = append(m.adapters, a)
		}
	}
	return m
}

// Post delivers the event to every configured adapter.
func (m *Multi) Post(ctx context.Context, ev Event) error {
	for _, a := range m.adapters {
		if err := a.Post(ctx, ev); err != nil {
			log.Printf("ops: post %q: %v", ev.Title, err)
		}
	}
	return nil
}

// Enabled reports whether any adapter is configured.
func (m *Multi) Enabled() bool {
	return len(m.adapters) > 0
}
