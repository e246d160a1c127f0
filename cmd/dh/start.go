package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/daemon"
	"github.com/deskhand/deskhand/internal/dashboard"
	"github.com/deskhand/deskhand/internal/intake"
	"github.com/deskhand/deskhand/internal/reconcile"
	"github.com/deskhand/deskhand/internal/servicedesk"
	"github.com/deskhand/deskhand/internal/store"
)

func newStartCmd() *cobra.Command {
	var configPath string
	var noDashboard bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the Deskhand daemon",
		Long:  "Polls the support mailbox, files new tickets, and reconciles tracked tickets until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath, noDashboard)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not start the dashboard even if enabled in config")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string, noDashboard bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if cfg.Dashboard.Enabled && !noDashboard {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				Store: st,
				Desk:  desk,
				Addr:  cfg.Dashboard.Addr,
				Out:   out,
			})
			if err != nil {
				log.Printf("dashboard: %v", err)
			}
		}()
	}

	return daemon.RunDaemon(ctx, deps, daemon.Options{
		PollInterval: cfg.Poll.Interval(),
		CronExpr:     cfg.Poll.Cron,
		Lookback:     cfg.Poll.Lookback(),
	}, out)
}

// buildDeps assembles the daemon collaborators from config. The store and
// desk are shared with the dashboard so both ends see one DB handle.
func buildDeps(ctx context.Context, cfg *config.Config, st *store.Store, desk *servicedesk.Client) (daemon.Deps, error) {
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return daemon.Deps{}, fmt.Errorf("mailer: %w", err)
	}
	sync, err := buildSync(ctx, cfg)
	if err != nil {
		return daemon.Deps{}, fmt.Errorf("secondary tracker: %w", err)
	}
	opsMulti, err := buildOps(cfg)
	if err != nil {
		return daemon.Deps{}, err
	}

	deps := daemon.Deps{
		Reconciler: reconcile.New(desk, st, notifier, sync, reconcile.Options{
			SendStatusUpdates: cfg.Notifications.SendStatusUpdates,
		}),
		Ops: opsMulti,
	}

	if source := buildSource(cfg); source != nil {
		classifier, err := buildClassifier(cfg)
		if err != nil {
			return daemon.Deps{}, fmt.Errorf("classifier: %w", err)
		}
		deps.Source = source
		deps.Intake = intake.New(desk, st, classifier, notifier, sync)
	}
	return deps, nil
}
