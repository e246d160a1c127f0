package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dh",
		Short: "Deskhand: helpdesk intake and ticket tracking",
		Long:  "Deskhand polls a support mailbox, files tickets in the service desk, and keeps requesters informed as their tickets move.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newTicketsCmd())
	cmd.AddCommand(newSummaryCmd())
	cmd.AddCommand(newCheckCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dh %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
