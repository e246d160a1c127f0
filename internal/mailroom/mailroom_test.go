package mailroom

import (
	"context"
	"testing"
	"time"
)

func TestIgnore(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		subject string
		want    bool
	}{
		{"normal request", "alice@example.com", "VPN not connecting", false},
		{"mailer daemon", "MAILER-DAEMON@example.com", "Returned mail", true},
		{"no-reply sender", "no-reply@service.example.com", "Your receipt", true},
		{"noreply variant", "noreply@billing.example.com", "Invoice", true},
		{"postmaster", "postmaster@example.com", "Delivery report", true},
		{"out of office", "bob@example.com", "Out of Office re: ticket", true},
		{"automatic reply", "bob@example.com", "Automatic reply: hello", true},
		{"undeliverable", "bob@example.com", "Undeliverable: your message", true},
		{"auto prefix", "bob@example.com", "Auto: away this week", true},
		{"auto inside subject is fine", "bob@example.com", "My automatic door is broken", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ignore(tt.from, tt.subject); got != tt.want {
				t.Errorf("Ignore(%q, %q) = %v, want %v", tt.from, tt.subject, got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	msgs := []Message{
		{ID: "a", From: "alice@example.com", Subject: "Printer broken"},
		{ID: "b", From: "mailer-daemon@example.com", Subject: "Bounce"},
		{ID: "c", From: "", Subject: "No sender"},
		{ID: "d", From: "carol@example.com", Subject: "Payroll question"},
	}
	kept := Filter(msgs)
	if len(kept) != 2 {
		t.Fatalf("kept %d messages, want 2", len(kept))
	}
	if kept[0].ID != "a" || kept[1].ID != "d" {
		t.Errorf("kept = %v", kept)
	}
}

func TestIMAPSource_RequiresAddr(t *testing.T) {
	src := &IMAPSource{}
	if _, err := src.Fetch(context.Background(), time.Time{}); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestIMAPSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &IMAPSource{Addr: "imap.example.com:993"}
	if _, err := src.Fetch(ctx, time.Time{}); err == nil {
		t.Fatal("expected context error")
	}
}
