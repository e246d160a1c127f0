// Package mailroom retrieves inbound help requests from a mailbox. The
// message identity (RFC 5322 Message-Id) is the correlation key that the
// creation pipeline uses to deduplicate tickets.
package mailroom

import (
	"context"
	"strings"
	"time"
)

// Message is one inbound help request.
type Message struct {
	ID       string // Message-Id header, the correlation key
	From     string
	Subject  string
	Body     string
	Received time.Time
}

// Source fetches unread messages received since a cutoff.
type Source interface {
	Fetch(ctx context.Context, since time.Time) ([]Message, error)
}

// noisy senders and subjects that never become tickets.
var (
	ignoredSenders = []string{
		"mailer-daemon",
		"no-reply",
		"noreply",
		"do-not-reply",
		"postmaster",
	}
	ignoredSubjectPrefixes = []string{
		"auto:",
		"automatic reply",
		"out of office",
		"delivery status notification",
		"undeliverable",
	}
)

// Ignore reports whether a message is automated noise (bounces, vacation
// replies, system mail) that should not create a ticket.
func Ignore(from, subject string) bool {
	lowFrom := strings.ToLower(from)
	for _, s := range ignoredSenders {
		if strings.Contains(lowFrom, s) {
			return true
		}
	}
	lowSubject := strings.ToLower(strings.TrimSpace(subject))
	for _, p := range ignoredSubjectPrefixes {
		if strings.HasPrefix(lowSubject, p) {
			return true
		}
	}
	return false
}

// Filter drops ignorable messages and messages without a sender.
func Filter(msgs []Message) []Message {
	kept := msgs[:0]
	for _, m := range msgs {
		if m.From == "" || Ignore(m.From, m.Subject) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
