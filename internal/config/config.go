// Package config provides YAML-based configuration loading for Deskhand.
//
// Structural settings live in config.yaml; credentials come from the
// environment (optionally seeded from a .env file) so the YAML file can
// be committed without secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Deskhand configuration, loaded from config.yaml.
type Config struct {
	Poll          PollConfig          `yaml:"poll"`
	DB            DBConfig            `yaml:"db"`
	ServiceDesk   ServiceDeskConfig   `yaml:"servicedesk"`
	Mailbox       MailboxConfig       `yaml:"mailbox"`
	SMTP          SMTPConfig          `yaml:"smtp"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Secondary     SecondaryConfig     `yaml:"secondary"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
}

// PollConfig controls the daemon schedule.
type PollConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Cron            string `yaml:"cron"` // 5-field; overrides interval when set
	LookbackHours   int    `yaml:"lookback_hours"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Lookback returns the initial mail window as a duration.
func (p PollConfig) Lookback() time.Duration {
	return time.Duration(p.LookbackHours) * time.Hour
}

// DBConfig holds database connection settings.
type DBConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Database string `yaml:"database"`
}

// ServiceDeskConfig holds the primary tracker connection and the
// category-to-assignment-group mapping.
type ServiceDeskConfig struct {
	BaseURL           string            `yaml:"base_url"`
	User              string            `yaml:"user"`
	Password          string            `yaml:"-"`
	CategoryGroups    map[string]string `yaml:"category_groups"`
	FallbackCallerID  string            `yaml:"fallback_caller_id"`
	FallbackGroupID   string            `yaml:"fallback_group_id"`
	FallbackGroupName string            `yaml:"fallback_group_name"`
}

// MailboxConfig holds IMAP settings for the intake inbox. An empty Addr
// disables intake and the daemon only reconciles.
type MailboxConfig struct {
	Addr     string `yaml:"addr"` // host:port, TLS
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Folder   string `yaml:"folder"`
}

// SMTPConfig holds outbound mail settings for requester notifications.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
}

// ClassifierConfig selects how inbound messages are classified.
type ClassifierConfig struct {
	Provider string `yaml:"provider"` // anthropic or static
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
}

// SecondaryConfig selects the secondary tracker, if any.
type SecondaryConfig struct {
	Kind    string                 `yaml:"kind"` // webhook, github, or empty
	Webhook SecondaryWebhookConfig `yaml:"webhook"`
	GitHub  SecondaryGitHubConfig  `yaml:"github"`
}

// SecondaryWebhookConfig configures the generic webhook tracker.
type SecondaryWebhookConfig struct {
	CreateURL string `yaml:"create_url"`
	StatusURL string `yaml:"status_url"`
	Token     string `yaml:"-"`
}

// SecondaryGitHubConfig configures the GitHub Issues tracker.
type SecondaryGitHubConfig struct {
	Owner  string   `yaml:"owner"`
	Repo   string   `yaml:"repo"`
	Labels []string `yaml:"labels"`
	Token  string   `yaml:"-"`
}

// NotificationsConfig controls requester and ops-channel notifications.
type NotificationsConfig struct {
	SendStatusUpdates bool      `yaml:"send_status_updates"`
	Ops               OpsConfig `yaml:"ops"`
}

// OpsConfig holds the optional operations-channel destinations.
type OpsConfig struct {
	SlackChannel   string `yaml:"slack_channel"`
	SlackToken     string `yaml:"-"`
	DiscordChannel string `yaml:"discord_channel"`
	DiscordToken   string `yaml:"-"`
}

// DashboardConfig controls the HTTP dashboard.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads a YAML config file from path, overlays credentials from the
// environment, and returns a validated Config. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, overlays environment credentials, and
// returns a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays credentials that never live in the YAML file.
func (c *Config) applyEnv() {
	c.DB.Password = os.Getenv("DESKHAND_DB_PASSWORD")
	c.ServiceDesk.Password = os.Getenv("SERVICEDESK_PASSWORD")
	c.Mailbox.Password = os.Getenv("IMAP_PASSWORD")
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.Classifier.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.Secondary.Webhook.Token = os.Getenv("SECONDARY_WEBHOOK_TOKEN")
	c.Secondary.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	c.Notifications.Ops.SlackToken = os.Getenv("SLACK_BOT_TOKEN")
	c.Notifications.Ops.DiscordToken = os.Getenv("DISCORD_BOT_TOKEN")
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Poll.IntervalSeconds == 0 {
		c.Poll.IntervalSeconds = 60
	}
	if c.Poll.LookbackHours == 0 {
		c.Poll.LookbackHours = 24
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "deskhand.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.Database == "" {
			c.DB.Database = "deskhand"
		}
	}
	if c.Mailbox.Folder == "" {
		c.Mailbox.Folder = "INBOX"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = "anthropic"
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = ":8080"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.ServiceDesk.BaseURL == "" {
		errs = append(errs, "servicedesk.base_url is required")
	}
	if c.ServiceDesk.User == "" {
		errs = append(errs, "servicedesk.user is required")
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite or mysql)", c.DB.Driver))
	}
	if c.Mailbox.Addr != "" && c.Mailbox.User == "" {
		errs = append(errs, "mailbox.user is required when mailbox.addr is set")
	}
	switch c.Classifier.Provider {
	case "anthropic", "static":
	default:
		errs = append(errs, fmt.Sprintf("classifier.provider %q is not supported (anthropic or static)", c.Classifier.Provider))
	}
	switch c.Secondary.Kind {
	case "", "webhook", "github":
	default:
		errs = append(errs, fmt.Sprintf("secondary.kind %q is not supported (webhook or github)", c.Secondary.Kind))
	}
	if c.Secondary.Kind == "webhook" && c.Secondary.Webhook.CreateURL == "" {
		errs = append(errs, "secondary.webhook.create_url is required")
	}
	if c.Secondary.Kind == "github" && (c.Secondary.GitHub.Owner == "" || c.Secondary.GitHub.Repo == "") {
		errs = append(errs, "secondary.github.owner and secondary.github.repo are required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
