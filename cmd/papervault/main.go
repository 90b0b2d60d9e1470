// Package main provides the papervault CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/papervault/papervault/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "papervault",
	Short: "Research-paper management service",
	Long: `papervault manages research papers, citations and annotated notes.

Papers persist into either a relational (SQLite) or a document (BadgerDB)
storage engine, selectable at runtime, with live migration between the two.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Best effort: a missing .env file is fine
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "papervault.yaml", "Path to the configuration file")
	rootCmd.Version = Version
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
