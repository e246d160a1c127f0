// Package secondary mirrors technical tickets into a secondary tracker
// (an engineering issue tracker) and propagates status changes to it.
//
// The link between the two systems is the primary ticket number embedded
// as a bracket prefix in the mirrored issue title, e.g.
// "[INC0010001] VPN drops every hour". Inbound webhook payloads carry the
// same title back, and ParsePrimaryNumber recovers the ticket number.
package secondary

import (
	"context"
	"regexp"
	"sync"

	"github.com/deskhand/deskhand/internal/models"
)

// Sync mirrors tickets into a secondary tracker.
type Sync interface {
	// CreateIssue opens an issue for the ticket and returns a reference
	// string identifying it in the secondary tracker.
	CreateIssue(ctx context.Context, primaryNumber, summary, description string) (string, error)

	// Propagate pushes a primary-side status change to the issue
	// identified by ref (as returned by CreateIssue).
	Propagate(ctx context.Context, ref, primaryNumber string, status models.Status) error
}

// TitlePrefix formats the bracket prefix linking an issue to its ticket.
func TitlePrefix(primaryNumber, summary string) string {
	return "[" + primaryNumber + "] " + summary
}

var primaryNumberRe = regexp.MustCompile(`^\[([A-Za-z]+[0-9]+)\]`)

// ParsePrimaryNumber extracts the primary ticket number from an issue
// title carrying a bracket prefix. The second return is false when the
// title has no recognizable prefix.
func ParsePrimaryNumber(title string) (string, bool) {
	m := primaryNumberRe.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Mock is an in-memory Sync for tests.
type Mock struct {
	mu         sync.Mutex
	created    []MockIssue
	propagated []MockPropagation
	createErr  error
	propErr    error
	nextRef    string
}

// MockIssue records one CreateIssue call.
type MockIssue struct {
	PrimaryNumber string
	Summary       string
	Description   string
}

// MockPropagation records one Propagate call.
type MockPropagation struct {
	Ref           string
	PrimaryNumber string
	Status        models.Status
}

// NewMock creates a Mock returning ref for created issues.
func NewMock(ref string) *Mock {
	return &Mock{nextRef: ref}
}

// FailCreate makes subsequent CreateIssue calls return err.
func (m *Mock) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// FailPropagate makes subsequent Propagate calls return err.
func (m *Mock) FailPropagate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.propErr = err
}

// CreateIssue implements Sync.
func (m *Mock) CreateIssue(_ context.Context, primaryNumber, summary, description string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, MockIssue{primaryNumber, summary, description})
	return m.nextRef, nil
}

// Propagate implements Sync.
func (m *Mock) Propagate(_ context.Context, ref, primaryNumber string, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.propErr != nil {
		return m.propErr
	}
	m.propagated = append(m.propagated, MockPropagation{ref, primaryNumber, status})
	return nil
}

// Created returns a copy of recorded CreateIssue calls.
func (m *Mock) Created() []MockIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockIssue(nil), m.created...)
}

// Propagated returns a copy of recorded Propagate calls.
func (m *Mock) Propagated() []MockPropagation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockPropagation(nil), m.propagated...)
}
