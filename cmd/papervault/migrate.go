package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papervault/papervault/internal/config"
	"github.com/papervault/papervault/internal/factory"
	"github.com/papervault/papervault/internal/migrate"
)

var (
	migrateFrom string
	migrateTo   string
)

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "Source engine (relational or document)")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "Target engine (relational or document)")
	migrateCmd.MarkFlagRequired("from")
	migrateCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate all data between storage engines",
	Long: `Migrate papers, citations and notes from one storage engine to the
other. Records the target already holds are skipped; source records are
deleted only after the copied and skipped counts add up.

Examples:
  papervault migrate --from relational --to document
  papervault migrate --from document --to relational`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := factory.New(cfg.Storage, logger)
	if err := f.Initialize(ctx); err != nil {
		return err
	}
	defer f.Cleanup()

	engine := migrate.New(f, logger, cfg.Migration.PageSize, cfg.Migration.RatePerSecond)
	result, err := engine.Run(ctx, config.EngineType(migrateFrom), config.EngineType(migrateTo))
	if err != nil {
		return err
	}

	if err := outputJSON(result); err != nil {
		return err
	}
	if !result.Complete {
		return fmt.Errorf("migration %s", result.Status())
	}
	return nil
}
