package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/models"
)

func newTicketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Inspect tracked tickets",
	}

	cmd.AddCommand(newTicketsListCmd())
	cmd.AddCommand(newTicketsShowCmd())
	cmd.AddCommand(newTicketsHistoryCmd())
	return cmd
}

func newTicketsListCmd() *cobra.Command {
	var configPath, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicketsList(cmd, configPath, status, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status value (e.g. 2 for In Progress)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum tickets to list")
	return cmd
}

func runTicketsList(cmd *cobra.Command, configPath, status string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	tickets, err := st.List(models.Status(status), limit, 0)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tickets.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tSTATUS\tREQUESTER\tASSIGNED\tSUMMARY")
	for _, t := range tickets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.Number, t.Status.Name(), t.RequesterEmail, t.AssignedTo, t.ShortDescription)
	}
	return w.Flush()
}

func newTicketsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <number>",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicketsShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	return cmd
}

func runTicketsShow(cmd *cobra.Command, configPath, number string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	t, err := st.GetByNumber(number)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", t.Number, t.ShortDescription)
	fmt.Fprintf(out, "  Status:     %s\n", t.Status.Name())
	fmt.Fprintf(out, "  Requester:  %s\n", t.RequesterEmail)
	fmt.Fprintf(out, "  Category:   %s (priority %d, urgency %d)\n", t.Category, t.Priority, t.Urgency)
	if t.AssignedTo != "" || t.AssignmentGroup != "" {
		fmt.Fprintf(out, "  Assigned:   %s / %s\n", t.AssignmentGroup, t.AssignedTo)
	}
	if t.SecondaryRef != "" {
		fmt.Fprintf(out, "  Secondary:  %s\n", t.SecondaryRef)
	}
	fmt.Fprintf(out, "  Tracked:    %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func newTicketsHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history <number>",
		Short: "Show a ticket's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicketsHistory(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	return cmd
}

func runTicketsHistory(cmd *cobra.Command, configPath, number string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	t, err := st.GetByNumber(number)
	if err != nil {
		return err
	}
	entries, err := st.History(t.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tACTION\tTRANSITION\tBY")
	for _, e := range entries {
		transition := ""
		if e.Action == models.ActionStatusChange {
			transition = fmt.Sprintf("%s -> %s", e.PreviousStatus.Name(), e.NewStatus.Name())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, transition, e.ChangedBy)
	}
	return w.Flush()
}
