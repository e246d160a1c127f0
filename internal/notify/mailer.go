package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
)

// one template pair per event kind
type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var mailTemplates = map[string]struct{ subject, body string }{
	KindCreated: {
		subject: "Support Ticket Created - {{.TicketNumber}}",
		body: `Hello,

Your support request has been received and a ticket has been created.

Ticket Number: {{.TicketNumber}}
Subject: {{.ShortDescription}}
Category: {{field . "category"}}
Priority: {{field . "priority"}}

Our support team will review your request. You will receive another email
when the ticket is updated or resolved.

This is an automated message; replies to this address are not monitored.`,
	},
	KindClosed: {
		subject: "Support Ticket Resolved - {{.TicketNumber}}",
		body: `Hello,

Your support ticket has been resolved.

Ticket Number: {{.TicketNumber}}
Subject: {{.ShortDescription}}
Status: {{field . "status"}}
Resolution: {{field . "resolution_notes"}}

If the issue is not actually resolved, reply to the service desk referencing
the ticket number above and a new ticket will be opened.`,
	},
	KindUpdated: {
		subject: "Support Ticket Updated - {{.TicketNumber}}",
		body: `Hello,

Your support ticket has been updated.

Ticket Number: {{.TicketNumber}}
Subject: {{.ShortDescription}}
Status: {{field . "status"}}

{{field . "update_notes"}}`,
	},
}

// Mailer is an SMTP-backed Notifier.
type Mailer struct {
	Host     string
	Port     int
	From     string
	User     string
	Password string

	// SendMail submits the rendered message; defaults to smtp.SendMail.
	// Tests replace it to capture output.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

	templates map[string]mailTemplate
}

// NewMailer creates an SMTP notifier. Host and From are required; User is
// optional (some relays accept unauthenticated submission from inside the
// network).
func NewMailer(host string, port int, from, user, password string) (*Mailer, error) {
	if host == "" {
		return nil, fmt.Errorf("notify: smtp host is required")
	}
	if from == "" {
		return nil, fmt.Errorf("notify: from address is required")
	}
	if port <= 0 {
		port = 587
	}

	funcs := template.FuncMap{
		"field": func(ev Event, name string) string {
			if v, ok := ev.Fields[name]; ok && v != "" {
				return v
			}
			return "-"
		},
	}
	templates := make(map[string]mailTemplate, len(mailTemplates))
	for kind, raw := range mailTemplates {
		subj, err := template.New(kind + "-subject").Funcs(funcs).Parse(raw.subject)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s subject template: %w", kind, err)
		}
		body, err := template.New(kind + "-body").Funcs(funcs).Parse(raw.body)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s body template: %w", kind, err)
		}
		templates[kind] = mailTemplate{subject: subj, body: body}
	}

	return &Mailer{
		Host:      host,
		Port:      port,
		From:      from,
		User:      user,
		Password:  password,
		SendMail:  smtp.SendMail,
		templates: templates,
	}, nil
}

// Send renders the template for the event kind and submits the message.
func (m *Mailer) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Recipient == "" {
		return fmt.Errorf("notify: recipient is required")
	}
	tmpl, ok := m.templates[ev.Kind]
	if !ok {
		return fmt.Errorf("notify: unknown event kind %q", ev.Kind)
	}

	var subject, body strings.Builder
	if err := tmpl.subject.Execute(&subject, ev); err != nil {
		return fmt.Errorf("notify: render subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, ev); err != nil {
		return fmt.Errorf("notify: render body: %w", err)
	}

	msg := buildMessage(m.From, ev.Recipient, subject.String(), body.String())

	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	if err := m.SendMail(addr, auth, m.From, []string{ev.Recipient}, msg); err != nil {
		return fmt.Errorf("notify: send %s to %s: %w", ev.Kind, ev.Recipient, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
