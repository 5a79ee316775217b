package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gwi.com/todo-assistant/internal/config"
	"gwi.com/todo-assistant/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(s *store.Store) error {
			if err := s.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, s)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return withStore(func(s *store.Store) error {
			if err := s.MigrateDown(steps); err != nil {
				return err
			}
			return printVersion(cmd, s)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(s *store.Store) error {
			return printVersion(cmd, s)
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// withStore opens the configured database, runs fn and closes it.
func withStore(fn func(s *store.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func printVersion(cmd *cobra.Command, s *store.Store) error {
	version, dirty, err := s.MigrationVersion()
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", version, suffix)
	return nil
}
