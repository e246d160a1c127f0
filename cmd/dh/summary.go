package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/deskhand/deskhand/internal/config"
)

func newSummaryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize tracked tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	return cmd
}

func runSummary(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	s, err := st.Summarize()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tickets: %d tracked, %d active\n", s.Total, s.Active)

	names := make([]string, 0, len(s.ByStatus))
	for name := range s.ByStatus {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-12s %d\n", name, s.ByStatus[name])
	}

	if s.Oldest != nil {
		fmt.Fprintf(out, "Oldest: %s (%s, since %s)\n",
			s.Oldest.Number, s.Oldest.RequesterEmail, s.Oldest.CreatedAt.Format("2006-01-02"))
	}
	return nil
}
