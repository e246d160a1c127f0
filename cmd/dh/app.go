package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/deskhand/deskhand/internal/classify"
	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/db"
	"github.com/deskhand/deskhand/internal/mailroom"
	"github.com/deskhand/deskhand/internal/notify"
	"github.com/deskhand/deskhand/internal/notify/ops"
	"github.com/deskhand/deskhand/internal/notify/ops/discord"
	"github.com/deskhand/deskhand/internal/notify/ops/slack"
	"github.com/deskhand/deskhand/internal/secondary"
	"github.com/deskhand/deskhand/internal/servicedesk"
	"github.com/deskhand/deskhand/internal/store"
)

const defaultConfigPath = "deskhand.yaml"

// openDB connects to the configured database.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DB.Driver {
	case "mysql":
		return db.ConnectMySQL(cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Database)
	default:
		return db.ConnectSQLite(cfg.DB.Path)
	}
}

// openStore connects to the database and wraps it in a ticket store.
func openStore(cfg *config.Config) (*store.Store, error) {
	gdb, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return store.New(gdb), nil
}

// newDesk builds the service desk client from config.
func newDesk(cfg *config.Config) (*servicedesk.Client, error) {
	return servicedesk.New(servicedesk.Options{
		BaseURL:        cfg.ServiceDesk.BaseURL,
		User:           cfg.ServiceDesk.User,
		Password:       cfg.ServiceDesk.Password,
		CategoryGroups: cfg.ServiceDesk.CategoryGroups,
		Fallbacks: servicedesk.Fallbacks{
			CallerID:  cfg.ServiceDesk.FallbackCallerID,
			GroupID:   cfg.ServiceDesk.FallbackGroupID,
			GroupName: cfg.ServiceDesk.FallbackGroupName,
		},
	})
}

// buildClassifier picks the configured classifier.
func buildClassifier(cfg *config.Config) (classify.Classifier, error) {
	if cfg.Classifier.Provider == "static" {
		return classify.Static{}, nil
	}
	return classify.NewAnthropic(cfg.Classifier.APIKey, cfg.Classifier.Model)
}

// buildNotifier builds the requester mailer, or nil when SMTP is not
// configured.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.SMTP.Host == "" {
		return nil, nil
	}
	return notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.User, cfg.SMTP.Password)
}

// buildSync builds the secondary tracker, or nil when none is configured.
func buildSync(ctx context.Context, cfg *config.Config) (secondary.Sync, error) {
	switch cfg.Secondary.Kind {
	case "webhook":
		return secondary.NewWebhook(secondary.WebhookOptions{
			CreateURL: cfg.Secondary.Webhook.CreateURL,
			StatusURL: cfg.Secondary.Webhook.StatusURL,
			Token:     cfg.Secondary.Webhook.Token,
		})
	case "github":
		return secondary.NewGitHub(ctx, secondary.GitHubOptions{
			Token:  cfg.Secondary.GitHub.Token,
			Owner:  cfg.Secondary.GitHub.Owner,
			Repo:   cfg.Secondary.GitHub.Repo,
			Labels: cfg.Secondary.GitHub.Labels,
		})
	default:
		return nil, nil
	}
}

// buildOps assembles the configured ops-channel adapters.
func buildOps(cfg *config.Config) (*ops.Multi, error) {
	var adapters []ops.Adapter
	o := cfg.Notifications.Ops
	if o.SlackChannel != "" && o.SlackToken != "" {
		a, err := slack.New(o.SlackToken, o.SlackChannel)
		if err != nil {
			return nil, fmt.Errorf("slack ops channel: %w", err)
		}
		adapters = append(adapters, a)
	}
	if o.DiscordChannel != "" && o.DiscordToken != "" {
		a, err := discord.New(o.DiscordToken, o.DiscordChannel)
		if err != nil {
			return nil, fmt.Errorf("discord ops channel: %w", err)
		}
		adapters = append(adapters, a)
	}
	return ops.NewMulti(adapters...), nil
}

// buildSource builds the IMAP intake source, or nil when no mailbox is
// configured.
func buildSource(cfg *config.Config) mailroom.Source {
	if cfg.Mailbox.Addr == "" {
		return nil
	}
	return &mailroom.IMAPSource{
		Addr:     cfg.Mailbox.Addr,
		User:     cfg.Mailbox.User,
		Password: cfg.Mailbox.Password,
		Folder:   cfg.Mailbox.Folder,
	}
}
