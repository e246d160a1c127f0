// Package intake turns inbound mailbox messages into tracked tickets.
//
// Each message is deduplicated against the service desk by correlation
// ID, classified, created in the service desk, and only then persisted
// locally. A message either becomes exactly one ticket or nothing: the
// local row is written only after the external create succeeds, and a
// failed local write is repaired on the next tick when the correlation
// lookup finds the external ticket again.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskhand/deskhand/internal/classify"
	"github.com/deskhand/deskhand/internal/mailroom"
	"github.com/deskhand/deskhand/internal/models"
	"github.com/deskhand/deskhand/internal/notify"
	"github.com/deskhand/deskhand/internal/secondary"
	"github.com/deskhand/deskhand/internal/servicedesk"
	"github.com/deskhand/deskhand/internal/store"
)

// correlationPrefix marks correlation keys generated for messages that
// arrived without a usable Message-Id.
const correlationPrefix = "deskhand-"

// Outcome classifies what CreateAndTrack did with a message.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Result reports the handling of a single message.
type Result struct {
	Outcome      Outcome
	TicketID     string
	TicketNumber string
	Err          error
}

// Desk is the service desk surface the pipeline needs. *servicedesk.Client
// satisfies it.
type Desk interface {
	FindByCorrelation(ctx context.Context, key string) (*servicedesk.TicketRef, error)
	Create(ctx context.Context, t servicedesk.NewTicket) (*servicedesk.TicketRef, error)
	ResolveCaller(ctx context.Context, email string) servicedesk.UserRef
	ResolveAssignment(ctx context.Context, category string) (servicedesk.GroupRef, servicedesk.UserRef)
}

// Pipeline creates and tracks tickets from inbound messages.
type Pipeline struct {
	desk       Desk
	store      *store.Store
	classifier classify.Classifier
	notifier   notify.Notifier
	sync       secondary.Sync // nil disables secondary mirroring
}

// New creates a Pipeline. sync may be nil.
func New(desk Desk, st *store.Store, cl classify.Classifier, n notify.Notifier, sync secondary.Sync) *Pipeline {
	return &Pipeline{desk: desk, store: st, classifier: cl, notifier: n, sync: sync}
}

// Report aggregates one intake pass over a batch of messages.
type Report struct {
	Handled    int
	Created    int
	Duplicates int
	Failed     int
}

// RunTick fetches messages received since the given time and runs each
// through CreateAndTrack. A failing message never stops the batch.
func (p *Pipeline) RunTick(ctx context.Context, source mailroom.Source, since time.Time) (*Report, error) {
	msgs, err := source.Fetch(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("intake: fetch messages: %w", err)
	}

	report := &Report{}
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := p.CreateAndTrack(ctx, msg)
		report.Handled++
		switch res.Outcome {
		case OutcomeCreated:
			report.Created++
			log.Printf("intake: created %s for %s", res.TicketNumber, msg.From)
		case OutcomeDuplicate:
			report.Duplicates++
		case OutcomeFailed:
			report.Failed++
			log.Printf("intake: message from %s failed: %v", msg.From, res.Err)
		}
	}
	return report, nil
}

// correlationKey returns the dedup key for a message: its Message-Id when
// present, otherwise a digest of sender, subject, and receive time so a
// refetched copy of the same mail maps back to the same ticket. Only a
// message with none of those gets a random key.
func correlationKey(msg mailroom.Message) string {
	if id := strings.TrimSpace(msg.ID); id != "" {
		return id
	}
	if msg.From == "" && msg.Subject == "" && msg.Received.IsZero() {
		return correlationPrefix + uuid.NewString()
	}
	sum := sha256.Sum256([]byte(msg.From + "\x00" + msg.Subject + "\x00" + msg.Received.UTC().Format(time.RFC3339)))
	return correlationPrefix + hex.EncodeToString(sum[:16])
}

// CreateAndTrack handles one message end to end.
func (p *Pipeline) CreateAndTrack(ctx context.Context, msg mailroom.Message) Result {
	key := correlationKey(msg)

	// The service desk is the dedup authority, not the local database:
	// a ticket created on a previous tick counts even if the local row
	// was lost.
	existing, err := p.desk.FindByCorrelation(ctx, key)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("intake: correlation lookup: %w", err)}
	}
	if existing != nil {
		p.adopt(existing, key, msg)
		return Result{Outcome: OutcomeDuplicate, TicketID: existing.ID, TicketNumber: existing.Number}
	}

	cls, err := p.classifier.Classify(ctx, classify.Item{
		From:    msg.From,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		// Classify already fell back to defaults; the ticket is still created.
		log.Printf("intake: classify %q: %v", msg.Subject, err)
	}

	requester := emailAddress(msg.From)
	caller := p.desk.ResolveCaller(ctx, requester)
	group, assignee := p.desk.ResolveAssignment(ctx, cls.Category)

	ref, err := p.desk.Create(ctx, servicedesk.NewTicket{
		ShortDescription: cls.ShortDescription,
		Description:      cls.Description,
		Priority:         cls.Priority,
		Urgency:          cls.Urgency,
		Category:         cls.Category,
		CorrelationID:    key,
		CallerID:         caller.ID,
		AssignmentGroup:  group.ID,
		AssignedTo:       assignee.ID,
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("intake: create ticket: %w", err)}
	}

	var secondaryRef string
	if cls.Technical && p.sync != nil {
		secondaryRef, err = p.sync.CreateIssue(ctx, ref.Number, cls.ShortDescription, cls.Description)
		if err != nil {
			log.Printf("intake: mirror %s: %v", ref.Number, err)
			secondaryRef = ""
		}
	}

	ticket := &models.Ticket{
		ID:               ref.ID,
		Number:           ref.Number,
		CorrelationID:    key,
		RequesterEmail:   requester,
		Status:           models.StatusNew,
		ShortDescription: cls.ShortDescription,
		Description:      cls.Description,
		Priority:         cls.Priority,
		Urgency:          cls.Urgency,
		Category:         cls.Category,
		AssignedTo:       assignee.Name,
		AssignmentGroup:  group.Name,
		SecondaryRef:     secondaryRef,
	}
	if err := p.store.Insert(ticket); err != nil {
		// The ticket exists externally; the next tick's correlation
		// lookup will find it and adopt it locally.
		return Result{Outcome: OutcomeFailed, TicketID: ref.ID, TicketNumber: ref.Number,
			Err: fmt.Errorf("intake: persist %s: %w", ref.Number, err)}
	}

	p.confirm(ctx, ticket)

	return Result{Outcome: OutcomeCreated, TicketID: ref.ID, TicketNumber: ref.Number}
}

// adopt ensures a ticket found externally by correlation has a local row,
// repairing tracking after a lost or failed local write.
func (p *Pipeline) adopt(ref *servicedesk.TicketRef, key string, msg mailroom.Message) {
	if existing, err := p.store.Get(ref.ID); err == nil && existing != nil {
		return
	}
	ticket := &models.Ticket{
		ID:               ref.ID,
		Number:           ref.Number,
		CorrelationID:    key,
		RequesterEmail:   emailAddress(msg.From),
		Status:           models.StatusNew,
		ShortDescription: strings.TrimSpace(msg.Subject),
		Priority:         3,
		Urgency:          3,
	}
	if err := p.store.Insert(ticket); err != nil {
		log.Printf("intake: adopt %s: %v", ref.Number, err)
	}
}

// confirm sends the creation confirmation and records it. Notification
// failures are logged, never recorded as sent and never fatal.
func (p *Pipeline) confirm(ctx context.Context, t *models.Ticket) {
	if p.notifier == nil || t.RequesterEmail == "" {
		return
	}
	ev := notify.Event{
		Kind:             notify.KindCreated,
		Recipient:        t.RequesterEmail,
		TicketNumber:     t.Number,
		ShortDescription: t.ShortDescription,
		Fields: map[string]string{
			notify.FieldCategory: t.Category,
			notify.FieldPriority: fmt.Sprintf("%d", t.Priority),
		},
	}
	if err := p.notifier.Send(ctx, ev); err != nil {
		log.Printf("intake: confirm %s: %v", t.Number, err)
		return
	}
	if err := p.store.RecordNotification(t, notify.KindCreated, t.RequesterEmail); err != nil {
		log.Printf("intake: record confirmation for %s: %v", t.Number, err)
	}
}

// emailAddress extracts the bare address from an RFC 5322 From value.
func emailAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}
