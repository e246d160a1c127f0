// Package daemon runs the polling loop: fetch new mail, create tickets,
// then reconcile every tracked ticket against the service desk.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deskhand/deskhand/internal/intake"
	"github.com/deskhand/deskhand/internal/mailroom"
	"github.com/deskhand/deskhand/internal/notify/ops"
	"github.com/deskhand/deskhand/internal/reconcile"
)

const (
	defaultPollInterval = time.Minute
	defaultLookback     = 24 * time.Hour
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Deps are the collaborators a daemon ticks through.
type Deps struct {
	Intake     *intake.Pipeline
	Reconciler *reconcile.Reconciler
	Source     mailroom.Source // nil disables intake
	Ops        *ops.Multi      // nil disables ops posts
}

// Options tunes the daemon loop.
type Options struct {
	PollInterval time.Duration // ignored when CronExpr is set
	CronExpr     string        // 5-field cron schedule; optional
	Lookback     time.Duration // mail window for the first fetch
}

// TickReport aggregates one full tick.
type TickReport struct {
	Intake    *intake.Report
	Reconcile *reconcile.Report
}

// RunDaemon loops until the context is canceled. Each tick runs intake
// then reconciliation; a failing phase is logged and the loop continues,
// so one bad poll never kills the daemon.
func RunDaemon(ctx context.Context, deps Deps, opts Options, out io.Writer) error {
	if deps.Reconciler == nil {
		return fmt.Errorf("daemon: reconciler is required")
	}
	if out == nil {
		out = io.Discard
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Lookback <= 0 {
		opts.Lookback = defaultLookback
	}
	if opts.CronExpr != "" {
		if _, err := cronParser.Parse(opts.CronExpr); err != nil {
			return fmt.Errorf("daemon: bad cron expression %q: %w", opts.CronExpr, err)
		}
		fmt.Fprintf(out, "Daemon starting (schedule %q)...\n", opts.CronExpr)
	} else {
		fmt.Fprintf(out, "Daemon starting (poll every %s)...\n", opts.PollInterval)
	}

	since := time.Now().Add(-opts.Lookback)
	for {
		fetchStart := time.Now()
		report := Tick(ctx, deps, since)
		if report.Intake != nil {
			// Only advance the window when the mailbox was actually read,
			// so a failed fetch is retried over the same range.
			since = fetchStart
		}
		announce(out, report)

		if err := sleepUntilNext(ctx, opts); err != nil {
			fmt.Fprintf(out, "Daemon stopped.\n")
			return nil
		}
	}
}

// Tick runs one intake plus reconciliation pass. Used by the daemon loop
// and by one-shot invocations.
func Tick(ctx context.Context, deps Deps, since time.Time) TickReport {
	var report TickReport

	if deps.Intake != nil && deps.Source != nil {
		in, err := deps.Intake.RunTick(ctx, deps.Source, since)
		if err != nil {
			log.Printf("daemon: intake: %v", err)
			postOps(ctx, deps.Ops, ops.Event{
				Title:    "Intake failed",
				Body:     err.Error(),
				Severity: ops.SeverityError,
			})
		} else {
			report.Intake = in
			if in.Created > 0 || in.Failed > 0 {
				postOps(ctx, deps.Ops, intakeEvent(in))
			}
		}
	}

	rec, err := deps.Reconciler.ReconcileAll(ctx)
	if err != nil {
		log.Printf("daemon: reconcile: %v", err)
		postOps(ctx, deps.Ops, ops.Event{
			Title:    "Reconciliation failed",
			Body:     err.Error(),
			Severity: ops.SeverityError,
		})
		return report
	}
	report.Reconcile = rec
	if rec.Changed > 0 || rec.Errors > 0 {
		postOps(ctx, deps.Ops, reconcileEvent(rec))
	}
	return report
}

func intakeEvent(in *intake.Report) ops.Event {
	sev := ops.SeveritySuccess
	if in.Failed > 0 {
		sev = ops.SeverityWarning
	}
	return ops.Event{
		Title:    "Intake pass",
		Severity: sev,
		Fields: []ops.Field{
			{Name: "Created", Value: strconv.Itoa(in.Created)},
			{Name: "Duplicates", Value: strconv.Itoa(in.Duplicates)},
			{Name: "Failed", Value: strconv.Itoa(in.Failed)},
		},
	}
}

func reconcileEvent(rec *reconcile.Report) ops.Event {
	sev := ops.SeverityInfo
	if rec.Errors > 0 {
		sev = ops.SeverityWarning
	}
	return ops.Event{
		Title:    "Reconcile pass",
		Severity: sev,
		Fields: []ops.Field{
			{Name: "Checked", Value: strconv.Itoa(rec.Checked)},
			{Name: "Changed", Value: strconv.Itoa(rec.Changed)},
			{Name: "Notified", Value: strconv.Itoa(rec.Notified)},
			{Name: "Errors", Value: strconv.Itoa(rec.Errors)},
		},
	}
}

func postOps(ctx context.Context, m *ops.Multi, ev ops.Event) {
	if m == nil || !m.Enabled() {
		return
	}
	m.Post(ctx, ev)
}

func announce(out io.Writer, report TickReport) {
	if report.Intake != nil && report.Intake.Handled > 0 {
		fmt.Fprintf(out, "Intake: %d handled, %d created, %d duplicates, %d failed\n",
			report.Intake.Handled, report.Intake.Created,
			report.Intake.Duplicates, report.Intake.Failed)
	}
	if report.Reconcile != nil && (report.Reconcile.Changed > 0 || report.Reconcile.Errors > 0) {
		fmt.Fprintf(out, "Reconcile: %d checked, %d changed, %d notified, %d errors\n",
			report.Reconcile.Checked, report.Reconcile.Changed,
			report.Reconcile.Notified, report.Reconcile.Errors)
	}
}

// sleepUntilNext waits for the next tick or returns on cancellation.
func sleepUntilNext(ctx context.Context, opts Options) error {
	d := opts.PollInterval
	if opts.CronExpr != "" {
		if next := nextCronDuration(opts.CronExpr); next > 0 {
			d = next
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextCronDuration parses a 5-field cron expression and returns the
// duration until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := time.Until(sched.Next(time.Now()))
	if d < 0 {
		return 0
	}
	return d
}
