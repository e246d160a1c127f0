package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// secretPrompts lists the credentials setup collects, in prompt order.
var secretPrompts = []struct {
	key   string
	label string
}{
	{"SERVICEDESK_PASSWORD", "Service desk API password"},
	{"IMAP_PASSWORD", "Mailbox (IMAP) password"},
	{"SMTP_PASSWORD", "SMTP password"},
	{"ANTHROPIC_API_KEY", "Anthropic API key"},
	{"SECONDARY_WEBHOOK_TOKEN", "Secondary webhook token"},
	{"GITHUB_TOKEN", "GitHub token"},
	{"SLACK_BOT_TOKEN", "Slack bot token"},
	{"DISCORD_BOT_TOKEN", "Discord bot token"},
}

func newSetupCmd() *cobra.Command {
	var envPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively store credentials in a .env file",
		Long:  "Prompts for each credential Deskhand can use and writes them to a .env file. Leave a prompt empty to keep the existing value.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, envPath)
		},
	}

	cmd.Flags().StringVar(&envPath, "env-file", ".env", "path to the .env file to write")
	return cmd
}

func runSetup(cmd *cobra.Command, envPath string) error {
	out := cmd.OutOrStdout()

	// Start from the existing file so untouched values survive.
	values, err := godotenv.Read(envPath)
	if err != nil {
		values = map[string]string{}
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	for _, p := range secretPrompts {
		existing := ""
		if values[p.key] != "" {
			existing = " [set]"
		}
		fmt.Fprintf(out, "%s%s: ", p.label, existing)

		value, err := readSecret(reader)
		if err != nil {
			return fmt.Errorf("read %s: %w", p.key, err)
		}
		fmt.Fprintln(out)
		if value != "" {
			values[p.key] = value
		}
	}

	if err := godotenv.Write(values, envPath); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}
	fmt.Fprintf(out, "Wrote %s\n", envPath)
	return nil
}

// readSecret reads one secret without echo when stdin is a terminal, and
// falls back to line reading otherwise (pipes, tests).
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}
