package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

// capturingMailer returns a Mailer whose SMTP submission is captured.
func capturingMailer(t *testing.T) (*Mailer, *capturedSend) {
	t.Helper()
	m, err := NewMailer("smtp.example.com", 587, "helpdesk@example.com", "helpdesk", "secret")
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	cap := &capturedSend{}
	m.SendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		cap.addr = addr
		cap.from = from
		cap.to = to
		cap.msg = string(msg)
		return cap.err
	}
	return m, cap
}

type capturedSend struct {
	addr string
	from string
	to   []string
	msg  string
	err  error
}

func TestNewMailer_Validation(t *testing.T) {
	if _, err := NewMailer("", 587, "from@example.com", "", ""); err == nil {
		t.Error("expected error for missing host")
	}
	if _, err := NewMailer("smtp.example.com", 587, "", "", ""); err == nil {
		t.Error("expected error for missing from")
	}
	m, err := NewMailer("smtp.example.com", 0, "from@example.com", "", "")
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	if m.Port != 587 {
		t.Errorf("default port = %d, want 587", m.Port)
	}
}

func TestSend_Closed(t *testing.T) {
	m, cap := capturingMailer(t)

	err := m.Send(context.Background(), Event{
		Kind:             KindClosed,
		Recipient:        "alice@example.com",
		TicketNumber:     "INC0001001",
		ShortDescription: "VPN not connecting",
		Fields: map[string]string{
			"status":           "Resolved",
			"resolution_notes": "Reset the VPN certificate.",
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if cap.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q", cap.addr)
	}
	if len(cap.to) != 1 || cap.to[0] != "alice@example.com" {
		t.Errorf("to = %v", cap.to)
	}
	for _, want := range []string{
		"Subject: Support Ticket Resolved - INC0001001",
		"VPN not connecting",
		"Reset the VPN certificate.",
		"Status: Resolved",
	} {
		if !strings.Contains(cap.msg, want) {
			t.Errorf("message missing %q\n%s", want, cap.msg)
		}
	}
}

func TestSend_ClosedMissingResolutionRendersDash(t *testing.T) {
	m, cap := capturingMailer(t)

	err := m.Send(context.Background(), Event{
		Kind:             KindClosed,
		Recipient:        "alice@example.com",
		TicketNumber:     "INC0001001",
		ShortDescription: "VPN not connecting",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(cap.msg, "Resolution: -") {
		t.Errorf("missing placeholder for absent resolution:\n%s", cap.msg)
	}
}

func TestSend_Created(t *testing.T) {
	m, cap := capturingMailer(t)

	err := m.Send(context.Background(), Event{
		Kind:             KindCreated,
		Recipient:        "bob@example.com",
		TicketNumber:     "INC0001002",
		ShortDescription: "Printer down",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(cap.msg, "Subject: Support Ticket Created - INC0001002") {
		t.Errorf("wrong subject:\n%s", cap.msg)
	}
}

func TestSend_UnknownKind(t *testing.T) {
	m, _ := capturingMailer(t)
	err := m.Send(context.Background(), Event{Kind: "bogus", Recipient: "x@example.com"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestSend_RequiresRecipient(t *testing.T) {
	m, _ := capturingMailer(t)
	err := m.Send(context.Background(), Event{Kind: KindCreated})
	if err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestMock(t *testing.T) {
	m := NewMock()
	if err := m.Send(context.Background(), Event{Kind: KindCreated, Recipient: "a@example.com"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.SentCount() != 1 {
		t.Errorf("sent = %d, want 1", m.SentCount())
	}
	last, ok := m.LastSent()
	if !ok || last.Kind != KindCreated {
		t.Errorf("last = %+v, %v", last, ok)
	}
}

func TestMock_FailKind(t *testing.T) {
	m := NewMock()
	m.FailKind(KindClosed, context.DeadlineExceeded)

	if err := m.Send(context.Background(), Event{Kind: KindCreated, Recipient: "a@example.com"}); err != nil {
		t.Errorf("created should succeed, got %v", err)
	}
	if err := m.Send(context.Background(), Event{Kind: KindClosed, Recipient: "a@example.com"}); err == nil {
		t.Error("closed should fail")
	}
	if m.SentCount() != 1 {
		t.Errorf("sent = %d, want 1", m.SentCount())
	}
}
