package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/reconcile"
)

func newCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check <number>",
		Short: "Reconcile a single ticket now",
		Long:  "Fetches the ticket's current state from the service desk and applies any status or assignment change immediately, outside the poll schedule.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	return cmd
}

func runCheck(cmd *cobra.Command, configPath, number string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	desk, err := newDesk(cfg)
	if err != nil {
		return fmt.Errorf("service desk: %w", err)
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	sync, err := buildSync(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("secondary tracker: %w", err)
	}

	ticket, err := st.GetByNumber(number)
	if err != nil {
		return err
	}

	r := reconcile.New(desk, st, notifier, sync, reconcile.Options{
		SendStatusUpdates: cfg.Notifications.SendStatusUpdates,
	})
	res, err := r.ReconcileTicket(cmd.Context(), ticket)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", number, err)
	}

	switch {
	case res.Skipped:
		fmt.Fprintf(out, "%s: external state unavailable, no change\n", number)
	case res.Changed && res.Notified:
		fmt.Fprintf(out, "%s: now %s, requester notified\n", number, ticket.Status.Name())
	case res.Changed:
		fmt.Fprintf(out, "%s: now %s\n", number, ticket.Status.Name())
	default:
		fmt.Fprintf(out, "%s: unchanged (%s)\n", number, ticket.Status.Name())
	}
	return nil
}
