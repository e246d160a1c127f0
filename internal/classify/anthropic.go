package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel   = "claude-3-5-haiku-latest"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBodyChars   = 4000
)

var errAPIKeyRequired = errors.New("API key required")

const promptTemplate = `You triage helpdesk email for a support team. Classify the message below.

Respond with a single JSON object and nothing else:
{"category": one of "IT", "HR", "Finance", "Facilities", "General",
 "priority": 1-4 (1 critical, 4 low),
 "urgency": 1-4,
 "is_technical": true if an engineer must investigate (software bugs, outages, infrastructure),
 "short_description": one-line summary, max 120 characters,
 "description": two or three sentence summary of the issue}

From: {{.From}}
Subject: {{.Subject}}

{{.Body}}`

// Anthropic is a Classifier backed by the Anthropic messages API.
type Anthropic struct {
	client         anthropic.Client
	model          anthropic.Model
	tmpl           *template.Template
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropic creates the model-backed classifier. The ANTHROPIC_API_KEY
// environment variable takes precedence over the explicit key. An empty
// model selects the default Haiku-class model.
func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("classify: %w: set ANTHROPIC_API_KEY or configure classifier.api_key", errAPIKeyRequired)
	}
	if model == "" {
		model = defaultModel
	}
	tmpl, err := template.New("classify").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("classify: parse prompt template: %w", err)
	}
	return &Anthropic{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		tmpl:           tmpl,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Classify renders the triage prompt, calls the model, and parses the JSON
// answer. Malformed model output yields Defaults, not an error; only a
// failed API call after retries returns one, and callers are expected to
// fall back to Defaults then too.
func (a *Anthropic) Classify(ctx context.Context, item Item) (Classification, error) {
	body := item.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}
	var sb strings.Builder
	err := a.tmpl.Execute(&sb, Item{From: item.From, Subject: item.Subject, Body: body})
	if err != nil {
		return Defaults(item), fmt.Errorf("classify: render prompt: %w", err)
	}

	raw, err := a.callWithRetry(ctx, sb.String())
	if err != nil {
		return Defaults(item), fmt.Errorf("classify: %w", err)
	}
	return parse(raw, item), nil
}

func (a *Anthropic) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.initialBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("empty model response")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("unexpected content block type %q", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", a.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
