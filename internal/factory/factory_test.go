package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papervault/papervault/internal/config"
	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/paper"
)

func testFactory(t *testing.T, engine config.EngineType) *Factory {
	t.Helper()

	dir := t.TempDir()
	f := New(config.Storage{
		Engine:       engine,
		SQLitePath:   filepath.Join(dir, "papers.db"),
		DocumentPath: filepath.Join(dir, "docstore"),
	}, nil)
	t.Cleanup(func() { f.Cleanup() })
	return f
}

func TestFactory_AccessBeforeInitialize(t *testing.T) {
	f := testFactory(t, config.EngineRelational)

	_, err := f.Papers()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.Notes()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.Citations()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, f.Health(context.Background()), ErrNotInitialized)
}

func TestFactory_InitializeIdempotent(t *testing.T) {
	f := testFactory(t, config.EngineRelational)
	ctx := context.Background()

	require.NoError(t, f.Initialize(ctx))
	require.NoError(t, f.Initialize(ctx))

	papers, err := f.Papers()
	require.NoError(t, err)

	created, err := papers.Create(ctx, &paper.Paper{Title: "Persist across re-init"})
	require.NoError(t, err)

	// A second Initialize must not reset state
	require.NoError(t, f.Initialize(ctx))
	found, err := papers.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, found)

	assert.NoError(t, f.Health(ctx))
}

func TestFactory_CitationsOnlyRelational(t *testing.T) {
	ctx := context.Background()

	relational := testFactory(t, config.EngineRelational)
	require.NoError(t, relational.Initialize(ctx))
	_, err := relational.Citations()
	require.NoError(t, err)

	document := testFactory(t, config.EngineDocument)
	require.NoError(t, document.Initialize(ctx))
	_, err = document.Citations()
	assert.ErrorIs(t, err, ErrNotImplemented)

	hybrid := testFactory(t, config.EngineHybrid)
	require.NoError(t, hybrid.Initialize(ctx))
	_, err = hybrid.Citations()
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestFactory_HybridRouting(t *testing.T) {
	f := testFactory(t, config.EngineHybrid)
	ctx := context.Background()
	require.NoError(t, f.Initialize(ctx))

	papers, err := f.Papers()
	require.NoError(t, err)
	p, err := papers.Create(ctx, &paper.Paper{Title: "Hybrid paper"})
	require.NoError(t, err)

	notes, err := f.Notes()
	require.NoError(t, err)
	n, err := notes.Create(ctx, &note.Note{Content: "Hybrid note"})
	require.NoError(t, err)

	// Papers route to the relational engine
	relPapers, err := f.EnginePapers(config.EngineRelational)
	require.NoError(t, err)
	found, err := relPapers.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, found)

	// Notes route to the document engine
	docNotes, err := f.EngineNotes(config.EngineDocument)
	require.NoError(t, err)
	foundNote, err := docNotes.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.NotNil(t, foundNote)
}

func TestFactory_SwitchEngine(t *testing.T) {
	f := testFactory(t, config.EngineRelational)
	ctx := context.Background()
	require.NoError(t, f.Initialize(ctx))

	papers, err := f.Papers()
	require.NoError(t, err)
	relPaper, err := papers.Create(ctx, &paper.Paper{Title: "Relational paper"})
	require.NoError(t, err)

	require.NoError(t, f.SwitchEngine(ctx, config.EngineDocument))
	assert.Equal(t, config.EngineDocument, f.ActiveEngine())

	// The document engine starts empty
	docPapers, err := f.Papers()
	require.NoError(t, err)
	missing, err := docPapers.FindByID(ctx, relPaper.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Switching back finds the original data again
	require.NoError(t, f.SwitchEngine(ctx, config.EngineRelational))
	papers, err = f.Papers()
	require.NoError(t, err)
	found, err := papers.FindByID(ctx, relPaper.ID)
	require.NoError(t, err)
	assert.NotNil(t, found)

	// Switching to the active engine is a no-op
	require.NoError(t, f.SwitchEngine(ctx, config.EngineRelational))

	assert.Error(t, f.SwitchEngine(ctx, "graph"))
}

func TestFactory_BeginExclusive(t *testing.T) {
	f := testFactory(t, config.EngineRelational)
	ctx := context.Background()
	require.NoError(t, f.Initialize(ctx))

	release, err := f.BeginExclusive()
	require.NoError(t, err)

	_, err = f.BeginExclusive()
	assert.ErrorIs(t, err, ErrBusy)

	// Switches contend for the same token
	err = f.SwitchEngine(ctx, config.EngineDocument)
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release() // releasing twice is safe

	release2, err := f.BeginExclusive()
	require.NoError(t, err)
	release2()
}

func TestFactory_CleanupIdempotent(t *testing.T) {
	f := testFactory(t, config.EngineHybrid)
	ctx := context.Background()
	require.NoError(t, f.Initialize(ctx))

	require.NoError(t, f.Cleanup())
	require.NoError(t, f.Cleanup())

	_, err := f.Papers()
	assert.ErrorIs(t, err, ErrNotInitialized)

	// Re-initialize after cleanup works
	require.NoError(t, f.Initialize(ctx))
	_, err = f.Papers()
	assert.NoError(t, err)
}
