package mailroom

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const maxBodyBytes = 64 << 10

// IMAPSource fetches unread mail over IMAP with TLS. A fresh connection is
// made per Fetch; the poll interval is long enough that keeping a session
// open buys nothing and reconnects paper over dropped connections.
type IMAPSource struct {
	Addr     string // host:port, e.g. imap.gmail.com:993
	User     string
	Password string
	Folder   string // default INBOX
}

// Fetch returns unseen messages received since the cutoff. Messages are
// left unread flags-wise only if the server honors PEEK; Deskhand relies on
// the correlation key for dedup, not on read flags.
func (s *IMAPSource) Fetch(ctx context.Context, since time.Time) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Addr == "" {
		return nil, fmt.Errorf("mailroom: imap address is required")
	}

	c, err := client.DialTLS(s.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("mailroom: dial %s: %w", s.Addr, err)
	}
	defer c.Logout()

	if err := c.Login(s.User, s.Password); err != nil {
		return nil, fmt.Errorf("mailroom: login %s: %w", s.User, err)
	}

	folder := s.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.Select(folder, true); err != nil {
		return nil, fmt.Errorf("mailroom: select %s: %w", folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if !since.IsZero() {
		criteria.Since = since
	}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("mailroom: search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var msgs []Message
	for im := range ch {
		msg, ok := fromIMAP(im, section)
		if !ok {
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("mailroom: fetch: %w", err)
	}
	return Filter(msgs), nil
}

func fromIMAP(im *imap.Message, section *imap.BodySectionName) (Message, bool) {
	env := im.Envelope
	if env == nil {
		return Message{}, false
	}

	var from string
	if len(env.From) > 0 {
		from = env.From[0].Address()
	}

	var body string
	if r := im.GetBody(section); r != nil {
		data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
		if err != nil {
			log.Printf("mailroom: read body of %q: %v", env.MessageId, err)
		} else {
			body = string(data)
		}
	}

	return Message{
		ID:       env.MessageId,
		From:     from,
		Subject:  env.Subject,
		Body:     body,
		Received: env.Date,
	}, true
}
