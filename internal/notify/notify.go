// Package notify delivers requester-facing ticket notifications. The core
// emits an Event; implementations decide how it reaches the requester.
package notify

import "context"

// Event kinds, one per notification template.
const (
	KindCreated = "created"
	KindClosed  = "closed"
	KindUpdated = "updated"
)

// Field keys the templates reference. Senders populate Event.Fields with
// these; anything else is ignored by the templates.
const (
	FieldStatus          = "status"
	FieldResolutionNotes = "resolution_notes"
	FieldUpdateNotes     = "update_notes"
	FieldCategory        = "category"
	FieldPriority        = "priority"
)

// Event is one notification for a requester.
type Event struct {
	Kind             string
	Recipient        string
	TicketNumber     string
	ShortDescription string
	// Fields carries kind-specific values keyed by the Field constants.
	Fields map[string]string
}

// Notifier sends a notification. A nil error means the message was accepted
// for delivery; the caller records it in ticket history only then.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}
