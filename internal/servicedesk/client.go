// Package servicedesk is the REST client for the primary ticket tracker's
// table API. It covers exactly what the intake pipeline and reconciliation
// loop need: correlation lookup, ticket creation, state fetch, field
// updates, and the caller/group lookups used for assignment.
package servicedesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/deskhand/deskhand/internal/models"
)

// ErrUnauthorized means the service desk rejected our credentials. The
// reconciliation tick aborts early on this; retrying per-ticket is pointless.
var ErrUnauthorized = errors.New("servicedesk: authentication failed")

// Fallbacks are the assignment defaults used when a lookup finds nothing.
type Fallbacks struct {
	CallerID  string
	GroupID   string
	GroupName string
}

// Options configures a Client.
type Options struct {
	BaseURL  string // e.g. https://yourdesk.example.com
	User     string
	Password string
	Timeout  time.Duration // per-request timeout, default 15s
	MaxRetry time.Duration // backoff budget per call, default 30s

	// CategoryGroups maps a classifier category to an assignment group name.
	CategoryGroups map[string]string
	Fallbacks      Fallbacks
}

// Client talks to the service desk table API. Lookup results are cached for
// the lifetime of the process; ticket state is never cached.
type Client struct {
	baseURL  string
	user     string
	password string
	httpc    *http.Client
	maxRetry time.Duration

	categoryGroups map[string]string
	fallbacks      Fallbacks

	mu          sync.Mutex
	userCache   map[string]UserRef
	groupCache  map[string]GroupRef
	memberCache map[string][]UserRef
	pick        int // round-robin cursor for group member assignment
}

// New creates a Client. BaseURL, User and Password are required.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("servicedesk: base URL is required")
	}
	if opts.User == "" || opts.Password == "" {
		return nil, fmt.Errorf("servicedesk: credentials are required")
	}
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxRetry := opts.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 30 * time.Second
	}
	return &Client{
		baseURL:        base,
		user:           opts.User,
		password:       opts.Password,
		httpc:          &http.Client{Timeout: timeout},
		maxRetry:       maxRetry,
		categoryGroups: opts.CategoryGroups,
		fallbacks:      opts.Fallbacks,
		userCache:      make(map[string]UserRef),
		groupCache:     make(map[string]GroupRef),
		memberCache:    make(map[string][]UserRef),
	}, nil
}

// TicketRef identifies a ticket in the service desk.
type TicketRef struct {
	ID     string
	Number string
}

// TicketState is the externally reported state of a ticket.
type TicketState struct {
	Status          models.Status
	AssignedTo      string
	AssignmentGroup string
	ResolutionNotes string
	WorkNotes       string
	UpdatedAt       string
}

// UserRef identifies a service desk user.
type UserRef struct {
	ID    string
	Name  string
	Email string
}

// GroupRef identifies an assignment group.
type GroupRef struct {
	ID   string
	Name string
}

// NewTicket is the payload for ticket creation.
type NewTicket struct {
	ShortDescription string
	Description      string
	Priority         int
	Urgency          int
	Category         string
	CorrelationID    string
	CallerID         string
	AssignmentGroup  string
	AssignedTo       string
}

// field is a table API field that arrives either as a plain string or as a
// {value, display_value} object depending on query parameters. Normalized
// here so nothing past this package sees the raw variant shape.
type field struct {
	Value   string
	Display string
}

func (f *field) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Value = s
		f.Display = s
		return nil
	}
	var obj struct {
		Value        string `json:"value"`
		DisplayValue string `json:"display_value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	f.Value = obj.Value
	f.Display = obj.DisplayValue
	return nil
}

// display returns the display value, falling back to the raw value.
func (f field) display() string {
	if f.Display != "" {
		return f.Display
	}
	return f.Value
}

// FindByCorrelation returns the existing ticket created for an inbound
// message identity, or nil if none exists. This queries the service desk,
// not the local store, so deduplication survives restarts and concurrent
// schedulers.
func (c *Client) FindByCorrelation(ctx context.Context, key string) (*TicketRef, error) {
	if key == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("sysparm_query", "correlation_id="+key)
	q.Set("sysparm_limit", "1")
	q.Set("sysparm_fields", "sys_id,number")

	var out struct {
		Result []struct {
			SysID  string `json:"sys_id"`
			Number string `json:"number"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "incident", q, nil, &out); err != nil {
		return nil, fmt.Errorf("servicedesk: find correlation: %w", err)
	}
	if len(out.Result) == 0 {
		return nil, nil
	}
	return &TicketRef{ID: out.Result[0].SysID, Number: out.Result[0].Number}, nil
}

// Create submits a new ticket and returns its assigned ID and number.
func (c *Client) Create(ctx context.Context, t NewTicket) (*TicketRef, error) {
	if t.ShortDescription == "" {
		return nil, fmt.Errorf("servicedesk: create: short description is required")
	}
	body := map[string]string{
		"short_description": truncate(t.ShortDescription, 160),
		"description":       t.Description,
		"contact_type":      "email",
		"priority":          fmt.Sprintf("%d", t.Priority),
		"urgency":           fmt.Sprintf("%d", t.Urgency),
		"category":          t.Category,
		"correlation_id":    t.CorrelationID,
	}
	if t.CallerID != "" {
		body["caller_id"] = t.CallerID
	}
	if t.AssignmentGroup != "" {
		body["assignment_group"] = t.AssignmentGroup
	}
	if t.AssignedTo != "" {
		body["assigned_to"] = t.AssignedTo
	}

	var out struct {
		Result struct {
			SysID  field `json:"sys_id"`
			Number field `json:"number"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "incident", nil, body, &out); err != nil {
		return nil, fmt.Errorf("servicedesk: create: %w", err)
	}
	if out.Result.SysID.Value == "" {
		return nil, fmt.Errorf("servicedesk: create: response missing sys_id")
	}
	return &TicketRef{ID: out.Result.SysID.Value, Number: out.Result.Number.Value}, nil
}

// GetState fetches the current external state of a ticket. Returns
// (nil, nil) when the ticket no longer exists upstream; callers skip and
// keep tracking rather than deleting local state.
func (c *Client) GetState(ctx context.Context, id string) (*TicketState, error) {
	q := url.Values{}
	q.Set("sysparm_display_value", "all")
	q.Set("sysparm_fields", "state,assigned_to,assignment_group,close_notes,work_notes,sys_updated_on")

	var out struct {
		Result *struct {
			State           field `json:"state"`
			AssignedTo      field `json:"assigned_to"`
			AssignmentGroup field `json:"assignment_group"`
			CloseNotes      field `json:"close_notes"`
			WorkNotes       field `json:"work_notes"`
			SysUpdatedOn    field `json:"sys_updated_on"`
		} `json:"result"`
	}
	err := c.do(ctx, http.MethodGet, "incident/"+url.PathEscape(id), q, nil, &out)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("servicedesk: get state %s: %w", id, err)
	}
	if out.Result == nil {
		return nil, nil
	}
	return &TicketState{
		Status:          models.Status(out.Result.State.Value),
		AssignedTo:      out.Result.AssignedTo.display(),
		AssignmentGroup: out.Result.AssignmentGroup.display(),
		ResolutionNotes: out.Result.CloseNotes.display(),
		WorkNotes:       out.Result.WorkNotes.display(),
		UpdatedAt:       out.Result.SysUpdatedOn.display(),
	}, nil
}

// Update patches fields on a ticket.
func (c *Client) Update(ctx context.Context, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	err := c.do(ctx, http.MethodPatch, "incident/"+url.PathEscape(id), nil, fields, nil)
	if err != nil {
		return fmt.Errorf("servicedesk: update %s: %w", id, err)
	}
	return nil
}

// AddWorkNote appends a work note to a ticket. Used when the secondary
// tracker reports progress back to us.
func (c *Client) AddWorkNote(ctx context.Context, id, note string) error {
	return c.Update(ctx, id, map[string]string{"work_notes": note})
}

// statusError carries a non-2xx HTTP response code.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, truncate(e.body, 200))
}

// do performs one API call with exponential backoff on transient failures.
// 401/403 surfaces as ErrUnauthorized, other 4xx are permanent, 429 and 5xx
// and network errors retry until the backoff budget runs out.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	u := c.baseURL + "/api/now/table/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	op := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(c.user, c.password)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err // network errors retry
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(ErrUnauthorized)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &statusError{code: resp.StatusCode, body: string(data)}
		case resp.StatusCode >= 400:
			return backoff.Permanent(&statusError{code: resp.StatusCode, body: string(data)})
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetry
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// truncate shortens s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
