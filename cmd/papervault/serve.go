package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papervault/papervault/internal/factory"
	"github.com/papervault/papervault/internal/migrate"
	"github.com/papervault/papervault/internal/server"
)

var serveAddress string

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the papervault HTTP API.

Examples:
  papervault serve
  papervault serve --address 0.0.0.0:9090`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := factory.New(cfg.Storage, logger)
	if err := f.Initialize(ctx); err != nil {
		return err
	}
	defer f.Cleanup()

	migrator := migrate.New(f, logger, cfg.Migration.PageSize, cfg.Migration.RatePerSecond)

	app := server.NewApp(f, migrator, server.AppConfig{
		Address:           cfg.Server.Address,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		Logger:            logger,
	})
	if err := app.Start(); err != nil {
		return err
	}
	logger.Info("serving", "address", app.Address(), "engine", string(f.ActiveEngine()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return app.Stop(shutdownCtx)
	case err := <-waitCh(app):
		return err
	}
}

func waitCh(app *server.App) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- app.Wait() }()
	return ch
}
