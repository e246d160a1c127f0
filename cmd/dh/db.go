package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"migrate"},
		Short:   "Create or migrate the Deskhand database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Deskhand config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gdb, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if cfg.DB.Driver == "mysql" {
		fmt.Fprintf(out, "Connected to MySQL at %s:%d/%s\n", cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	} else {
		fmt.Fprintf(out, "Opened SQLite database %s\n", cfg.DB.Path)
	}

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}
