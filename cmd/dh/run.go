package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/daemon"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single intake and reconcile pass, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	return cmd
}

func runOnce(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	desk, err := newDesk(cfg)
	if err != nil {
		return fmt.Errorf("service desk: %w", err)
	}
	deps, err := buildDeps(ctx, cfg, st, desk)
	if err != nil {
		return err
	}

	since := time.Now().Add(-cfg.Poll.Lookback())
	report := daemon.Tick(ctx, deps, since)

	if report.Intake != nil {
		fmt.Fprintf(out, "Intake: %d handled, %d created, %d duplicates, %d failed\n",
			report.Intake.Handled, report.Intake.Created,
			report.Intake.Duplicates, report.Intake.Failed)
	} else {
		fmt.Fprintln(out, "Intake: skipped (no mailbox configured)")
	}
	if report.Reconcile != nil {
		fmt.Fprintf(out, "Reconcile: %d checked, %d changed, %d notified, %d skipped, %d errors\n",
			report.Reconcile.Checked, report.Reconcile.Changed,
			report.Reconcile.Notified, report.Reconcile.Skipped, report.Reconcile.Errors)
	}
	return nil
}
