// Package factory constructs repositories for the configured storage
// engine and supports switching engines at runtime. In hybrid mode
// papers live on the relational engine and notes on the document
// engine. Exclusive operations (engine switch, migration) are
// serialized through an admission gate; concurrent attempts fail fast
// with ErrBusy instead of queueing.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/papervault/papervault/internal/config"
	"github.com/papervault/papervault/internal/docstore"
	"github.com/papervault/papervault/internal/repository"
	"github.com/papervault/papervault/internal/sqlite"
)

// Factory owns the storage backends and hands out repositories for the
// active engine. Safe for concurrent use.
type Factory struct {
	mu     sync.RWMutex
	cfg    config.Storage
	engine config.EngineType
	logger *slog.Logger

	sqliteDB *sqlite.DB
	docStore *docstore.Store

	initialized bool

	// gate is the admission token for exclusive operations.
	gate chan struct{}
}

// New creates a factory for the given storage configuration. Call
// Initialize before requesting repositories.
func New(cfg config.Storage, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		cfg:    cfg,
		engine: cfg.Engine,
		logger: logger,
		gate:   make(chan struct{}, 1),
	}
	f.gate <- struct{}{}
	return f
}

// Initialize opens the backends required by the active engine.
// Idempotent: a second call on an initialized factory is a no-op.
func (f *Factory) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}
	if !f.engine.Valid() {
		return fmt.Errorf("initializing storage: unknown engine %q", f.engine)
	}
	if err := f.openBackends(f.engine); err != nil {
		return err
	}
	f.initialized = true
	f.logger.Info("storage initialized", "engine", string(f.engine))
	return nil
}

// openBackends ensures the backends the engine needs are open.
// Caller holds the write lock.
func (f *Factory) openBackends(engine config.EngineType) error {
	needSQLite := engine == config.EngineRelational || engine == config.EngineHybrid
	needDoc := engine == config.EngineDocument || engine == config.EngineHybrid

	if needSQLite && f.sqliteDB == nil {
		if dir := filepath.Dir(f.cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqlite.OpenDB(f.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening relational engine: %w", err)
		}
		f.sqliteDB = db
	}
	if needDoc && f.docStore == nil {
		store, err := docstore.Open(f.cfg.DocumentPath, false)
		if err != nil {
			return fmt.Errorf("opening document engine: %w", err)
		}
		f.docStore = store
	}
	return nil
}

// Cleanup closes every open backend. Idempotent; the factory must be
// re-initialized before further use.
func (f *Factory) Cleanup() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	if f.sqliteDB != nil {
		if err := f.sqliteDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing relational engine: %w", err)
		}
		f.sqliteDB = nil
	}
	if f.docStore != nil {
		if err := f.docStore.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing document engine: %w", err)
		}
		f.docStore = nil
	}
	f.initialized = false
	return firstErr
}

// ActiveEngine returns the engine currently serving repositories.
func (f *Factory) ActiveEngine() config.EngineType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.engine
}

// SwitchEngine changes the active engine at runtime, opening any
// backend the new engine needs. Previously opened backends stay open so
// a switch back is cheap and migrations can read both sides. Fails with
// ErrBusy while another exclusive operation runs.
func (f *Factory) SwitchEngine(ctx context.Context, engine config.EngineType) error {
	if !engine.Valid() {
		return fmt.Errorf("switching engine: unknown engine %q", engine)
	}
	release, err := f.BeginExclusive()
	if err != nil {
		return fmt.Errorf("switching engine: %w", err)
	}
	defer release()
	return f.SetEngine(engine)
}

// SetEngine performs the engine change without claiming the admission
// token. For callers that already hold it (the migration engine);
// everyone else goes through SwitchEngine.
func (f *Factory) SetEngine(engine config.EngineType) error {
	if !engine.Valid() {
		return fmt.Errorf("switching engine: unknown engine %q", engine)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return ErrNotInitialized
	}
	if engine == f.engine {
		return nil
	}
	if err := f.openBackends(engine); err != nil {
		return err
	}
	f.logger.Info("storage engine switched", "from", string(f.engine), "to", string(engine))
	f.engine = engine
	return nil
}

// BeginExclusive claims the exclusive-operation token. The returned
// release function must be called exactly once. Fails with ErrBusy when
// another exclusive operation holds the token.
func (f *Factory) BeginExclusive() (func(), error) {
	select {
	case <-f.gate:
		var once sync.Once
		return func() {
			once.Do(func() { f.gate <- struct{}{} })
		}, nil
	default:
		return nil, ErrBusy
	}
}

// Papers returns the paper repository for the active engine. Hybrid
// mode routes papers to the relational engine.
func (f *Factory) Papers() (repository.PaperRepository, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.initialized {
		return nil, ErrNotInitialized
	}
	switch f.engine {
	case config.EngineRelational, config.EngineHybrid:
		return sqlite.NewPaperRepository(f.sqliteDB), nil
	case config.EngineDocument:
		return docstore.NewPaperRepository(f.docStore), nil
	}
	return nil, fmt.Errorf("unknown engine %q", f.engine)
}

// Notes returns the note repository for the active engine. Hybrid mode
// routes notes to the document engine.
func (f *Factory) Notes() (repository.NoteRepository, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.initialized {
		return nil, ErrNotInitialized
	}
	switch f.engine {
	case config.EngineRelational:
		return sqlite.NewNoteRepository(f.sqliteDB), nil
	case config.EngineDocument, config.EngineHybrid:
		return docstore.NewNoteRepository(f.docStore), nil
	}
	return nil, fmt.Errorf("unknown engine %q", f.engine)
}

// Citations returns the citation-record repository. Only the relational
// engine offers one; other engines fail with ErrNotImplemented.
func (f *Factory) Citations() (repository.CitationRepository, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.initialized {
		return nil, ErrNotInitialized
	}
	if f.engine != config.EngineRelational {
		return nil, fmt.Errorf("citation records on %s engine: %w", f.engine, ErrNotImplemented)
	}
	return sqlite.NewCitationRepository(f.sqliteDB), nil
}

// EnginePapers returns the paper repository of a specific engine
// regardless of which one is active, opening its backend on demand.
// The migration engine uses this to read the source and write the
// target side by side. Hybrid is a routing mode, not a storage engine.
func (f *Factory) EnginePapers(engine config.EngineType) (repository.PaperRepository, error) {
	if err := f.requireConcrete(engine); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return nil, ErrNotInitialized
	}
	if err := f.openBackends(engine); err != nil {
		return nil, err
	}
	if engine == config.EngineRelational {
		return sqlite.NewPaperRepository(f.sqliteDB), nil
	}
	return docstore.NewPaperRepository(f.docStore), nil
}

// EngineNotes is the note counterpart of EnginePapers.
func (f *Factory) EngineNotes(engine config.EngineType) (repository.NoteRepository, error) {
	if err := f.requireConcrete(engine); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return nil, ErrNotInitialized
	}
	if err := f.openBackends(engine); err != nil {
		return nil, err
	}
	if engine == config.EngineRelational {
		return sqlite.NewNoteRepository(f.sqliteDB), nil
	}
	return docstore.NewNoteRepository(f.docStore), nil
}

func (f *Factory) requireConcrete(engine config.EngineType) error {
	if engine == config.EngineRelational || engine == config.EngineDocument {
		return nil
	}
	return fmt.Errorf("engine %q is not a storage engine", engine)
}

// Health probes every open backend.
func (f *Factory) Health(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.initialized {
		return ErrNotInitialized
	}
	if f.sqliteDB != nil {
		if err := f.sqliteDB.Ping(); err != nil {
			return fmt.Errorf("relational engine: %w", err)
		}
	}
	if f.docStore != nil && f.docStore.IsClosed() {
		return fmt.Errorf("document engine: store closed")
	}
	return nil
}
