package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papervault/papervault/internal/config"
	"github.com/papervault/papervault/internal/factory"
)

var statsEngine string

func init() {
	statsCmd.Flags().StringVar(&statsEngine, "type", "", "Engine to count (relational or document, default: configured)")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts per storage engine",
	Long: `Show how many papers and notes each storage engine holds.

Examples:
  papervault stats
  papervault stats --type document`,
	RunE: runStats,
}

type statsOutput struct {
	Engine string `json:"engine"`
	Papers int    `json:"papers"`
	Notes  int    `json:"notes"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx := context.Background()
	f := factory.New(cfg.Storage, logger)
	if err := f.Initialize(ctx); err != nil {
		return err
	}
	defer f.Cleanup()

	engine := f.ActiveEngine()
	if statsEngine != "" {
		engine = config.EngineType(statsEngine)
		if engine != config.EngineRelational && engine != config.EngineDocument {
			return fmt.Errorf("type must be relational or document")
		}
	}

	out := statsOutput{Engine: string(engine)}
	if engine == config.EngineHybrid {
		papers, err := f.Papers()
		if err != nil {
			return err
		}
		notes, err := f.Notes()
		if err != nil {
			return err
		}
		if out.Papers, err = papers.Count(ctx); err != nil {
			return err
		}
		if out.Notes, err = notes.Count(ctx); err != nil {
			return err
		}
		return outputJSON(out)
	}

	papers, err := f.EnginePapers(engine)
	if err != nil {
		return err
	}
	notes, err := f.EngineNotes(engine)
	if err != nil {
		return err
	}
	if out.Papers, err = papers.Count(ctx); err != nil {
		return err
	}
	if out.Notes, err = notes.Count(ctx); err != nil {
		return err
	}
	return outputJSON(out)
}
