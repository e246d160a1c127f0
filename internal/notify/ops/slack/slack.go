// Package slack implements the ops Adapter for Slack using the Web API.
package slack

import (
	"context"
	"errors"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/deskhand/deskhand/internal/notify/ops"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// severityColors maps event severities to Slack attachment sidebar colors.
var severityColors = map[string]string{
	ops.SeverityInfo:    "#439fe0",
	ops.SeveritySuccess: "#36a64f",
	ops.SeverityWarning: "#daa038",
	ops.SeverityError:   "#d00000",
}

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter posts events to a Slack channel.
type Adapter struct {
	client    slackClient
	channelID string
}

// New creates a Slack Adapter posting to the given channel.
func New(botToken, channelID string) (*Adapter, error) {
	if botToken == "" {
		return nil, errors.New("slack: bot token is required")
	}
	if channelID == "" {
		return nil, errors.New("slack: channel ID is required")
	}
	return &Adapter{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}, nil
}

// Post implements ops.Adapter.
func (a *Adapter) Post(ctx context.Context, ev ops.Event) error {
	attachment := slackapi.Attachment{
		Color: severityColors[ev.Severity],
		Title: ev.Title,
		Text:  ev.Body,
	}
	for _, f := range ev.Fields {
		attachment.Fields = append(attachment.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: true,
		})
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, _, err := a.client.PostMessageContext(ctx, a.channelID,
			slackapi.MsgOptionAttachments(attachment))
		if err == nil {
			return nil
		}
		lastErr = err

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		select {
		case <-time.After(rle.RetryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
