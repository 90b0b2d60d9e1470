// Package config handles service configuration: a YAML file with
// environment-variable overrides. A .env file, if present, is loaded by
// the CLI before the environment is read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineType selects the active storage engine.
type EngineType string

const (
	EngineRelational EngineType = "relational"
	EngineDocument   EngineType = "document"

	// EngineHybrid routes papers to the relational engine and notes to
	// the document engine simultaneously. It is a routing mode, not a
	// storage engine: it cannot be a migration source or target.
	EngineHybrid EngineType = "hybrid"
)

// Valid reports whether the engine selector is a known value.
func (e EngineType) Valid() bool {
	switch e {
	case EngineRelational, EngineDocument, EngineHybrid:
		return true
	}
	return false
}

// Storage configures the two engines. Both paths are always set so the
// factory can switch engines live without re-reading configuration.
type Storage struct {
	Engine       EngineType `yaml:"engine"`
	SQLitePath   string     `yaml:"sqlite_path"`
	DocumentPath string     `yaml:"document_path"`
}

// Server configures the HTTP listener.
type Server struct {
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Migration configures the migration engine.
type Migration struct {
	// PageSize bounds how many records are fetched per read while
	// draining the source collections.
	PageSize int `yaml:"page_size"`
	// RatePerSecond throttles per-record copy operations. Zero means
	// no throttle.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// Config is the full service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Migration Migration `yaml:"migration"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			Address:           "127.0.0.1:8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Storage: Storage{
			Engine:       EngineRelational,
			SQLitePath:   filepath.Join(".papervault", "papers.db"),
			DocumentPath: filepath.Join(".papervault", "docstore"),
		},
		Migration: Migration{
			PageSize: 1000,
		},
	}
}

// Load reads configuration from path, falling back to defaults for any
// unset field, then applies environment overrides. A missing file is
// not an error; defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from PAPERVAULT_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("PAPERVAULT_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("PAPERVAULT_ENGINE"); v != "" {
		c.Storage.Engine = EngineType(v)
	}
	if v := os.Getenv("PAPERVAULT_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("PAPERVAULT_DOCUMENT_PATH"); v != "" {
		c.Storage.DocumentPath = v
	}
	if v := os.Getenv("PAPERVAULT_MIGRATION_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Migration.PageSize = n
		}
	}
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	if !c.Storage.Engine.Valid() {
		return fmt.Errorf("invalid storage engine: %q (valid: relational, document, hybrid)", c.Storage.Engine)
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	if c.Storage.DocumentPath == "" {
		return fmt.Errorf("storage.document_path is required")
	}
	if c.Migration.PageSize <= 0 {
		c.Migration.PageSize = Default().Migration.PageSize
	}
	return nil
}
