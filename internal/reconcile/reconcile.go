// Package reconcile drifts locally tracked tickets toward the state the
// service desk reports for them.
//
// Each pass reads every active ticket, fetches its external state, and
// records any status or assignment change as append-only history before
// any side effect that depends on it. Requesters are notified when their
// ticket first reaches a terminal status; a ticket already terminal stays
// closed locally no matter what the service desk reports later.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/deskhand/deskhand/internal/models"
	"github.com/deskhand/deskhand/internal/notify"
	"github.com/deskhand/deskhand/internal/secondary"
	"github.com/deskhand/deskhand/internal/servicedesk"
	"github.com/deskhand/deskhand/internal/store"
)

// defaultResolution is sent to the requester when a closed ticket carries
// no resolution notes.
const defaultResolution = "Your request has been completed."

// Desk is the service desk surface reconciliation needs. *servicedesk.Client
// satisfies it.
type Desk interface {
	GetState(ctx context.Context, id string) (*servicedesk.TicketState, error)
}

// Options tunes reconciliation behavior.
type Options struct {
	// SendStatusUpdates notifies requesters on non-terminal status
	// changes as well as closures.
	SendStatusUpdates bool
}

// Reconciler synchronizes tracked tickets with the service desk.
type Reconciler struct {
	desk     Desk
	store    *store.Store
	notifier notify.Notifier
	sync     secondary.Sync // nil disables propagation
	opts     Options
}

// New creates a Reconciler. sync may be nil.
func New(desk Desk, st *store.Store, n notify.Notifier, sync secondary.Sync, opts Options) *Reconciler {
	return &Reconciler{desk: desk, store: st, notifier: n, sync: sync, opts: opts}
}

// Report aggregates one reconciliation pass.
type Report struct {
	Checked  int
	Changed  int
	Notified int
	Skipped  int
	Errors   int
}

// ReconcileAll runs one pass over every active ticket. A single ticket
// failing does not stop the pass, with one exception: an authentication
// failure from the service desk aborts immediately, because every
// remaining call would fail the same way.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*Report, error) {
	tickets, err := r.store.Active()
	if err != nil {
		return nil, fmt.Errorf("reconcile: load active tickets: %w", err)
	}

	report := &Report{}
	for i := range tickets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		t := &tickets[i]
		report.Checked++

		res, err := r.ReconcileTicket(ctx, t)
		if err != nil {
			if errors.Is(err, servicedesk.ErrUnauthorized) {
				return report, fmt.Errorf("reconcile: aborting pass: %w", err)
			}
			report.Errors++
			log.Printf("reconcile: %s: %v", t.Number, err)
			continue
		}
		if res.Skipped {
			report.Skipped++
		}
		if res.Changed {
			report.Changed++
		}
		if res.Notified {
			report.Notified++
		}
	}
	return report, nil
}

// TicketResult reports what ReconcileTicket did for one ticket.
type TicketResult struct {
	Skipped  bool // external state unavailable
	Changed  bool // status or assignment recorded
	Notified bool // requester notification sent and recorded
}

// ReconcileTicket synchronizes a single ticket. The passed ticket is
// updated in place when a change is recorded.
func (r *Reconciler) ReconcileTicket(ctx context.Context, t *models.Ticket) (TicketResult, error) {
	state, err := r.desk.GetState(ctx, t.ID)
	if err != nil {
		return TicketResult{}, fmt.Errorf("get state: %w", err)
	}
	if state == nil {
		// Deleted or not yet visible externally. Leave the local row
		// alone and try again next pass.
		return TicketResult{Skipped: true}, nil
	}

	// A ticket that already reached a terminal status stays closed
	// locally even if the desk later reports it active again.
	if t.Status.Terminal() {
		return TicketResult{}, nil
	}

	prev := t.Status
	statusChanged := state.Status != "" && state.Status != t.Status
	assignmentChanged := state.AssignedTo != t.AssignedTo || state.AssignmentGroup != t.AssignmentGroup

	if !statusChanged {
		if !assignmentChanged {
			return TicketResult{}, nil
		}
		if err := r.store.RecordAssignmentChange(t, state.AssignedTo, state.AssignmentGroup); err != nil {
			return TicketResult{}, fmt.Errorf("record assignment: %w", err)
		}
		return TicketResult{Changed: true}, nil
	}

	// History is written before any notification so a crash between the
	// two leaves a recorded change with no sent mail, never the reverse.
	if err := r.store.RecordStatusChange(t, state.Status, state.AssignedTo, state.AssignmentGroup); err != nil {
		return TicketResult{}, fmt.Errorf("record status: %w", err)
	}
	res := TicketResult{Changed: true}

	switch {
	case state.Status.Terminal() && !prev.Terminal():
		res.Notified = r.notifyClosed(ctx, t, state)
		// Terminal status reaches the secondary tracker after the
		// committed history and the requester mail; a failure here never
		// reverts either.
		if t.SecondaryRef != "" && r.sync != nil {
			if err := r.sync.Propagate(ctx, t.SecondaryRef, t.Number, state.Status); err != nil {
				log.Printf("reconcile: propagate %s: %v", t.Number, err)
			}
		}
	case r.opts.SendStatusUpdates:
		res.Notified = r.notifyUpdated(ctx, t, prev, state)
	}
	return res, nil
}

func (r *Reconciler) notifyClosed(ctx context.Context, t *models.Ticket, state *servicedesk.TicketState) bool {
	resolution := state.ResolutionNotes
	if resolution == "" {
		resolution = defaultResolution
	}
	return r.send(ctx, t, notify.Event{
		Kind:             notify.KindClosed,
		Recipient:        t.RequesterEmail,
		TicketNumber:     t.Number,
		ShortDescription: t.ShortDescription,
		Fields: map[string]string{
			notify.FieldStatus:          t.Status.Name(),
			notify.FieldResolutionNotes: resolution,
		},
	})
}

func (r *Reconciler) notifyUpdated(ctx context.Context, t *models.Ticket, prev models.Status, state *servicedesk.TicketState) bool {
	notes := fmt.Sprintf("Status changed from %s to %s.", prev.Name(), t.Status.Name())
	if t.AssignedTo != "" {
		notes += "\nAssigned to: " + t.AssignedTo
	}
	if state.WorkNotes != "" {
		notes += "\n\n" + state.WorkNotes
	}
	return r.send(ctx, t, notify.Event{
		Kind:             notify.KindUpdated,
		Recipient:        t.RequesterEmail,
		TicketNumber:     t.Number,
		ShortDescription: t.ShortDescription,
		Fields: map[string]string{
			notify.FieldStatus:      t.Status.Name(),
			notify.FieldUpdateNotes: notes,
		},
	})
}

// send delivers a notification and records it only on success, so the
// history never claims a mail that was not sent.
func (r *Reconciler) send(ctx context.Context, t *models.Ticket, ev notify.Event) bool {
	if r.notifier == nil || t.RequesterEmail == "" {
		return false
	}
	if err := r.notifier.Send(ctx, ev); err != nil {
		log.Printf("reconcile: notify %s for %s: %v", ev.Kind, t.Number, err)
		return false
	}
	if err := r.store.RecordNotification(t, ev.Kind, ev.Recipient); err != nil {
		log.Printf("reconcile: record %s notification for %s: %v", ev.Kind, t.Number, err)
	}
	return true
}
