package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papervault/papervault/internal/config"
	"github.com/papervault/papervault/internal/factory"
	"github.com/papervault/papervault/internal/migrate"
	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/repository"
)

func testApp(t *testing.T) *App {
	t.Helper()

	dir := t.TempDir()
	f := factory.New(config.Storage{
		Engine:       config.EngineRelational,
		SQLitePath:   filepath.Join(dir, "papers.db"),
		DocumentPath: filepath.Join(dir, "docstore"),
	}, nil)
	require.NoError(t, f.Initialize(t.Context()))
	t.Cleanup(func() { f.Cleanup() })

	migrator := migrate.New(f, nil, 100, 0)
	return NewApp(f, migrator, AppConfig{})
}

func do(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func createTestPaper(t *testing.T, app *App, title, doi string) paper.Paper {
	t.Helper()

	rec := do(t, app, http.MethodPost, "/api/papers", paper.Paper{
		Title:   title,
		DOI:     doi,
		Authors: []paper.Author{{Name: "John Smith"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[paper.Paper](t, rec)
}

func TestHealth(t *testing.T) {
	app := testApp(t)

	rec := do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "relational", body["engine"])
}

func TestPaperEndpoints(t *testing.T) {
	app := testApp(t)

	created := createTestPaper(t, app, "Machine Learning in Biology", "10.1234/smith")
	require.NotEmpty(t, created.ID)

	// Duplicate DOI
	rec := do(t, app, http.MethodPost, "/api/papers", paper.Paper{Title: "Other", DOI: "10.1234/smith"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Validation
	rec = do(t, app, http.MethodPost, "/api/papers", paper.Paper{Title: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Fetch
	rec = do(t, app, http.MethodGet, "/api/papers/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[paper.Paper](t, rec)
	assert.Equal(t, created.Title, got.Title)

	rec = do(t, app, http.MethodGet, "/api/papers/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// List
	rec = do(t, app, http.MethodGet, "/api/papers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]paper.Paper](t, rec)
	assert.Len(t, list, 1)

	// Update
	rec = do(t, app, http.MethodPut, "/api/papers/"+created.ID, map[string]any{"title": "Revised"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[paper.Paper](t, rec)
	assert.Equal(t, "Revised", updated.Title)

	rec = do(t, app, http.MethodPut, "/api/papers/no-such-id", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Delete
	rec = do(t, app, http.MethodDelete, "/api/papers/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, app, http.MethodDelete, "/api/papers/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	app := testApp(t)
	createTestPaper(t, app, "Deep Learning for Proteins", "10.1/deep")
	createTestPaper(t, app, "Statistical Genomics", "10.1/stats")

	rec := do(t, app, http.MethodGet, "/api/papers/search?query=deep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[repository.SearchResult](t, rec)
	assert.Equal(t, 1, result.Total)

	rec = do(t, app, http.MethodGet, "/api/papers/search?from=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCitationEndpoints(t *testing.T) {
	app := testApp(t)
	source := createTestPaper(t, app, "Citing", "10.1/src")
	target := createTestPaper(t, app, "Cited", "10.1/tgt")

	rec := do(t, app, http.MethodPost, "/api/papers/"+source.ID+"/citations",
		citationRequest{TargetID: target.ID, Type: "direct"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Duplicate pair
	rec = do(t, app, http.MethodPost, "/api/papers/"+source.ID+"/citations",
		citationRequest{TargetID: target.ID, Type: "direct"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Self citation
	rec = do(t, app, http.MethodPost, "/api/papers/"+source.ID+"/citations",
		citationRequest{TargetID: source.ID, Type: "direct"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing target
	rec = do(t, app, http.MethodPost, "/api/papers/"+source.ID+"/citations",
		citationRequest{TargetID: "no-such-id", Type: "direct"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/papers/"+source.ID+"/citations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	citations := decode[[]paper.Citation](t, rec)
	require.Len(t, citations, 1)

	rec = do(t, app, http.MethodGet, "/api/papers/"+target.ID+"/cited-by", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	citedBy := decode[[]paper.Citation](t, rec)
	require.Len(t, citedBy, 1)

	rec = do(t, app, http.MethodGet, "/api/papers/"+source.ID+"/network?depth=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	network := decode[repository.CitationNetwork](t, rec)
	assert.Len(t, network.Papers, 2)

	rec = do(t, app, http.MethodDelete, "/api/papers/"+source.ID+"/citations/"+target.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, app, http.MethodDelete, "/api/papers/"+source.ID+"/citations/"+target.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteEndpoints(t *testing.T) {
	app := testApp(t)

	rec := do(t, app, http.MethodPost, "/api/notes", note.Note{
		Content: "Read this first.",
		Tags:    []string{"important"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[note.Note](t, rec)

	rec = do(t, app, http.MethodPost, "/api/notes", note.Note{Content: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/notes/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/notes?tag=important", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]note.Note](t, rec)
	assert.Len(t, list, 1)

	// Annotations
	rec = do(t, app, http.MethodPost, "/api/notes/"+created.ID+"/annotations",
		note.Annotation{Type: note.AnnotationHighlight, Page: 2, Text: "key claim"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	withAnnotation := decode[note.Note](t, rec)
	require.Len(t, withAnnotation.Annotations, 1)
	annotationID := withAnnotation.Annotations[0].ID

	rec = do(t, app, http.MethodPost, "/api/notes/"+created.ID+"/annotations",
		note.Annotation{Type: "underline"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodPut, "/api/notes/"+created.ID+"/annotations/"+annotationID,
		map[string]any{"text": "revised"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[note.Note](t, rec)
	assert.Equal(t, "revised", updated.Annotations[0].Text)

	rec = do(t, app, http.MethodDelete, "/api/notes/"+created.ID+"/annotations/"+annotationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	removed := decode[note.Note](t, rec)
	assert.Empty(t, removed.Annotations)

	rec = do(t, app, http.MethodDelete, "/api/notes/"+created.ID+"/annotations/no-such-annotation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, app, http.MethodDelete, "/api/notes/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDatabaseEndpoints(t *testing.T) {
	app := testApp(t)
	createTestPaper(t, app, "To Migrate", "10.1/migrate")

	// Stats for the active engine
	rec := do(t, app, http.MethodGet, "/api/database/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[statsResponse](t, rec)
	assert.Equal(t, "relational", stats.Engine)
	assert.Equal(t, 1, stats.Papers)

	// Migrate to the document engine
	rec = do(t, app, http.MethodPost, "/api/database/migrate",
		migrateRequest{FromDatabase: "relational", ToDatabase: "document"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "complete", body["status"])

	rec = do(t, app, http.MethodPost, "/api/database/migrate",
		migrateRequest{FromDatabase: "relational", ToDatabase: "relational"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Switch and verify the paper arrived
	rec = do(t, app, http.MethodPost, "/api/database/switch", switchRequest{DatabaseType: "document"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/database/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats = decode[statsResponse](t, rec)
	assert.Equal(t, "document", stats.Engine)
	assert.Equal(t, 1, stats.Papers)

	rec = do(t, app, http.MethodPost, "/api/database/switch", switchRequest{DatabaseType: "graph"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/database/stats?type=graph", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCitationRecordsUnavailableOffRelational(t *testing.T) {
	app := testApp(t)

	rec := do(t, app, http.MethodPost, "/api/database/switch", switchRequest{DatabaseType: "document"})
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := app.factory.Citations()
	assert.ErrorIs(t, err, factory.ErrNotImplemented)
}
