package secondary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deskhand/deskhand/internal/models"
)

const webhookTimeout = 15 * time.Second

// Webhook is a Sync posting to generic automation webhooks, typically a
// Jira automation rule that creates an issue from the payload.
type Webhook struct {
	createURL string
	statusURL string
	token     string
	client    *http.Client
}

// WebhookOptions configures a Webhook.
type WebhookOptions struct {
	CreateURL string // endpoint receiving issue-creation payloads
	StatusURL string // endpoint receiving status updates; optional
	Token     string // bearer token; optional
	Timeout   time.Duration
}

// NewWebhook creates a Webhook Sync.
func NewWebhook(opts WebhookOptions) (*Webhook, error) {
	if opts.CreateURL == "" {
		return nil, errors.New("secondary: create URL is required")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = webhookTimeout
	}
	return &Webhook{
		createURL: opts.CreateURL,
		statusURL: opts.StatusURL,
		token:     opts.Token,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// CreateIssue implements Sync. The response body is normalized: automation
// endpoints return anything from a bare string to a nested issue object,
// and all recognized shapes reduce to a reference string.
func (w *Webhook) CreateIssue(ctx context.Context, primaryNumber, summary, description string) (string, error) {
	payload := map[string]string{
		"summary":     TitlePrefix(primaryNumber, summary),
		"description": description,
	}
	body, err := w.post(ctx, w.createURL, payload)
	if err != nil {
		return "", fmt.Errorf("secondary: create issue for %s: %w", primaryNumber, err)
	}
	ref := normalizeRef(body)
	if ref == "" {
		// The endpoint accepted the issue but returned nothing usable;
		// fall back to the bracket prefix as the correlation handle.
		ref = primaryNumber
	}
	return ref, nil
}

// Propagate implements Sync. Without a status URL the call is a no-op.
func (w *Webhook) Propagate(ctx context.Context, ref, primaryNumber string, status models.Status) error {
	if w.statusURL == "" {
		return nil
	}
	payload := map[string]string{
		"issue":   ref,
		"summary": "[" + primaryNumber + "]",
		"status":  status.Name(),
	}
	if _, err := w.post(ctx, w.statusURL, payload); err != nil {
		return fmt.Errorf("secondary: propagate %s for %s: %w", status.Name(), primaryNumber, err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, url string, payload map[string]string) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return body, nil
}

// normalizeRef extracts an issue reference from a webhook response body.
// Recognized shapes, in order:
//
//	"ABC-123"
//	{"key": "ABC-123"}  or  {"id": "10042"}  or  {"ref": "..."}
//	{"issue": {"key": "ABC-123"}}  or  {"issue": "ABC-123"}
func normalizeRef(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		// Not JSON at all; a short plain-text body is taken verbatim.
		if len(trimmed) <= 64 && !strings.ContainsAny(trimmed, "{}<>\n") {
			return trimmed
		}
		return ""
	}

	for _, key := range []string{"key", "id", "ref"} {
		if raw, ok := obj[key]; ok {
			if v := scalarString(raw); v != "" {
				return v
			}
		}
	}
	if raw, ok := obj["issue"]; ok {
		if v := scalarString(raw); v != "" {
			return v
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			for _, key := range []string{"key", "id", "ref"} {
				if inner, ok := nested[key]; ok {
					if v := scalarString(inner); v != "" {
						return v
					}
				}
			}
		}
	}
	return ""
}

// scalarString decodes a JSON string or number into a string.
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
