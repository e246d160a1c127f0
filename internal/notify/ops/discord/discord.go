// Package discord implements the ops Adapter for Discord via the REST API.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/deskhand/deskhand/internal/notify/ops"
)

// severityColors maps event severities to Discord embed colors.
var severityColors = map[string]int{
	ops.SeverityInfo:    0x439fe0,
	ops.SeveritySuccess: 0x36a64f,
	ops.SeverityWarning: 0xdaa038,
	ops.SeverityError:   0xd00000,
}

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter posts events to a Discord channel. Sending embeds only needs
// the REST API, so the Gateway WebSocket is never opened.
type Adapter struct {
	sess      session
	channelID string
}

// New creates a Discord Adapter posting to the given channel.
func New(botToken, channelID string) (*Adapter, error) {
	if botToken == "" {
		return nil, errors.New("discord: bot token is required")
	}
	if channelID == "" {
		return nil, errors.New("discord: channel ID is required")
	}
	sess, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Adapter{sess: sess, channelID: channelID}, nil
}

// Post implements ops.Adapter.
func (a *Adapter) Post(ctx context.Context, ev ops.Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Body,
		Color:       severityColors[ev.Severity],
	}
	for _, f := range ev.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: true,
		})
	}
	_, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}
