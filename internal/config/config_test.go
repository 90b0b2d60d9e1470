package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Storage.Engine != EngineRelational {
		t.Errorf("default engine = %q, want relational", cfg.Storage.Engine)
	}
	if cfg.Server.Address == "" || cfg.Storage.SQLitePath == "" || cfg.Storage.DocumentPath == "" {
		t.Error("default config has empty required fields")
	}
	if cfg.Migration.PageSize <= 0 {
		t.Errorf("default migration page size = %d", cfg.Migration.PageSize)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Engine != EngineRelational {
		t.Errorf("engine = %q, want default", cfg.Storage.Engine)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papervault.yaml")
	data := []byte(`
server:
  address: 0.0.0.0:9090
storage:
  engine: document
  document_path: /tmp/docs
migration:
  page_size: 250
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != "0.0.0.0:9090" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Storage.Engine != EngineDocument {
		t.Errorf("engine = %q, want document", cfg.Storage.Engine)
	}
	if cfg.Storage.DocumentPath != "/tmp/docs" {
		t.Errorf("document path = %q", cfg.Storage.DocumentPath)
	}
	// Unset fields keep their defaults
	if cfg.Storage.SQLitePath == "" {
		t.Error("sqlite path lost its default")
	}
	if cfg.Migration.PageSize != 250 {
		t.Errorf("page size = %d, want 250", cfg.Migration.PageSize)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAPERVAULT_ENGINE", "hybrid")
	t.Setenv("PAPERVAULT_ADDRESS", "127.0.0.1:7070")
	t.Setenv("PAPERVAULT_MIGRATION_PAGE_SIZE", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Engine != EngineHybrid {
		t.Errorf("engine = %q, want hybrid", cfg.Storage.Engine)
	}
	if cfg.Server.Address != "127.0.0.1:7070" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Migration.PageSize != 42 {
		t.Errorf("page size = %d, want 42", cfg.Migration.PageSize)
	}
}

func TestLoad_InvalidEngine(t *testing.T) {
	t.Setenv("PAPERVAULT_ENGINE", "graph")

	if _, err := Load(""); err == nil {
		t.Fatal("Load() accepted an unknown engine")
	}
}

func TestEngineType_Valid(t *testing.T) {
	for _, e := range []EngineType{EngineRelational, EngineDocument, EngineHybrid} {
		if !e.Valid() {
			t.Errorf("%q should be valid", e)
		}
	}
	if EngineType("graph").Valid() {
		t.Error("unknown engine reported valid")
	}
}
