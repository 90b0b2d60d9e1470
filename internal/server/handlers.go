package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/papervault/papervault/internal/config"
	"github.com/papervault/papervault/internal/factory"
	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/pdf"
	"github.com/papervault/papervault/internal/repository"
)

type citationRequest struct {
	TargetID string `json:"target_id"`
	Context  string `json:"context,omitempty"`
	Type     string `json:"type"`
	Page     int    `json:"page,omitempty"`
}

type switchRequest struct {
	DatabaseType string `json:"databaseType"`
}

type migrateRequest struct {
	FromDatabase string `json:"fromDatabase"`
	ToDatabase   string `json:"toDatabase"`
}

type statsResponse struct {
	Engine    string `json:"engine"`
	Papers    int    `json:"papers"`
	Notes     int    `json:"notes"`
	Citations *int   `json:"citations,omitempty"`
}

func (a *App) registerRoutes() {
	e := a.echo

	e.GET("/health", a.handleHealth)

	api := e.Group("/api")

	api.GET("/papers", a.handleListPapers)
	api.POST("/papers", a.handleCreatePaper)
	api.GET("/papers/search", a.handleSearchPapers)
	api.GET("/papers/:id", a.handleGetPaper)
	api.PUT("/papers/:id", a.handleUpdatePaper)
	api.DELETE("/papers/:id", a.handleDeletePaper)

	api.GET("/papers/:id/citations", a.handleGetCitations)
	api.GET("/papers/:id/cited-by", a.handleGetCitedBy)
	api.POST("/papers/:id/citations", a.handleAddCitation)
	api.DELETE("/papers/:id/citations/:target", a.handleRemoveCitation)
	api.GET("/papers/:id/network", a.handleCitationNetwork)

	api.GET("/notes", a.handleListNotes)
	api.POST("/notes", a.handleCreateNote)
	api.GET("/notes/:id", a.handleGetNote)
	api.PUT("/notes/:id", a.handleUpdateNote)
	api.DELETE("/notes/:id", a.handleDeleteNote)

	api.POST("/notes/:id/annotations", a.handleAddAnnotation)
	api.PUT("/notes/:id/annotations/:annotationId", a.handleUpdateAnnotation)
	api.DELETE("/notes/:id/annotations/:annotationId", a.handleRemoveAnnotation)

	api.POST("/database/switch", a.handleSwitchEngine)
	api.POST("/database/migrate", a.handleMigrate)
	api.GET("/database/stats", a.handleStats)
}

// writeError maps the error taxonomy onto HTTP statuses. Unrecognized
// errors become a generic 500 so storage internals never leak.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicate):
		return c.JSON(http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, factory.ErrBusy):
		return c.JSON(http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalid):
		return c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, factory.ErrNotImplemented):
		return c.JSON(http.StatusNotImplemented, map[string]any{"error": err.Error()})
	case errors.Is(err, factory.ErrNotInitialized):
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func notFound(c echo.Context, what string) error {
	return c.JSON(http.StatusNotFound, map[string]any{"error": what + " not found"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"error": msg})
}

func (a *App) handleHealth(c echo.Context) error {
	if err := a.factory.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable", "error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"engine": string(a.factory.ActiveEngine()),
	})
}

func (a *App) handleListPapers(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	papers, err := repo.FindAll(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	if papers == nil {
		papers = []paper.Paper{}
	}
	return c.JSON(http.StatusOK, papers)
}

func (a *App) handleCreatePaper(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	var p paper.Paper
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid request body")
	}
	a.fillFromPDF(&p)

	created, err := repo.Create(c.Request().Context(), &p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// fillFromPDF backfills DOI and title from an attached PDF when the
// request left them blank. Extraction failures only cost the backfill.
func (a *App) fillFromPDF(p *paper.Paper) {
	if p.FilePath == "" || (p.DOI != "" && p.Title != "") {
		return
	}
	meta, err := pdf.ExtractMetadata(p.FilePath)
	if err != nil {
		a.logger.Warn("pdf metadata extraction failed", "path", p.FilePath, "error", err)
		return
	}
	if p.DOI == "" {
		p.DOI = meta.DOI
	}
	if p.Title == "" {
		p.Title = meta.Title
	}
}

func (a *App) handleSearchPapers(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	params := repository.SearchParams{
		Query:      c.QueryParam("query"),
		Author:     c.QueryParam("author"),
		Keyword:    c.QueryParam("keyword"),
		Journal:    c.QueryParam("journal"),
		Conference: c.QueryParam("conference"),
		SortBy:     repository.SortKey(c.QueryParam("sort_by")),
		Limit:      intQuery(c, "limit", 0),
		Offset:     intQuery(c, "offset", 0),
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return badRequest(c, "invalid from date")
		}
		params.From = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return badRequest(c, "invalid to date")
		}
		params.To = t
	}

	result, err := repo.Search(c.Request().Context(), params)
	if err != nil {
		return writeError(c, err)
	}
	if result.Papers == nil {
		result.Papers = []paper.Paper{}
	}
	return c.JSON(http.StatusOK, result)
}

func (a *App) handleGetPaper(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	p, err := repo.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if p == nil {
		return notFound(c, "paper")
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) handleUpdatePaper(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	var upd paper.Update
	if err := c.Bind(&upd); err != nil {
		return badRequest(c, "invalid request body")
	}
	p, err := repo.Update(c.Request().Context(), c.Param("id"), upd)
	if err != nil {
		return writeError(c, err)
	}
	if p == nil {
		return notFound(c, "paper")
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) handleDeletePaper(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	deleted, err := repo.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !deleted {
		return notFound(c, "paper")
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleGetCitations(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	citations, err := repo.GetCitations(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if citations == nil {
		citations = []paper.Citation{}
	}
	return c.JSON(http.StatusOK, citations)
}

func (a *App) handleGetCitedBy(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	citations, err := repo.GetCitedBy(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if citations == nil {
		citations = []paper.Citation{}
	}
	return c.JSON(http.StatusOK, citations)
}

func (a *App) handleAddCitation(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	var req citationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	citation := paper.Citation{
		SourceID: c.Param("id"),
		TargetID: req.TargetID,
		Context:  req.Context,
		Type:     paper.CitationType(req.Type),
		Page:     req.Page,
	}
	created, err := repo.AddCitation(c.Request().Context(), &citation)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *App) handleRemoveCitation(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	removed, err := repo.RemoveCitation(c.Request().Context(), c.Param("id"), c.Param("target"))
	if err != nil {
		return writeError(c, err)
	}
	if !removed {
		return notFound(c, "citation")
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleCitationNetwork(c echo.Context) error {
	repo, err := a.factory.Papers()
	if err != nil {
		return writeError(c, err)
	}
	depth := intQuery(c, "depth", 1)
	network, err := repo.GetCitationNetwork(c.Request().Context(), c.Param("id"), depth)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, network)
}

func (a *App) handleListNotes(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()

	var notes []note.Note
	switch {
	case c.QueryParam("paper_id") != "":
		notes, err = repo.FindByPaperID(ctx, c.QueryParam("paper_id"))
	case c.QueryParam("tag") != "":
		notes, err = repo.FindByTag(ctx, c.QueryParam("tag"))
	case c.QueryParam("content") != "":
		notes, err = repo.FindByContent(ctx, c.QueryParam("content"))
	default:
		notes, err = repo.FindAll(ctx, intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	}
	if err != nil {
		return writeError(c, err)
	}
	if notes == nil {
		notes = []note.Note{}
	}
	return c.JSON(http.StatusOK, notes)
}

func (a *App) handleCreateNote(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	var n note.Note
	if err := c.Bind(&n); err != nil {
		return badRequest(c, "invalid request body")
	}
	created, err := repo.Create(c.Request().Context(), &n)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *App) handleGetNote(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	n, err := repo.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if n == nil {
		return notFound(c, "note")
	}
	return c.JSON(http.StatusOK, n)
}

func (a *App) handleUpdateNote(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	var upd note.Update
	if err := c.Bind(&upd); err != nil {
		return badRequest(c, "invalid request body")
	}
	n, err := repo.Update(c.Request().Context(), c.Param("id"), upd)
	if err != nil {
		return writeError(c, err)
	}
	if n == nil {
		return notFound(c, "note")
	}
	return c.JSON(http.StatusOK, n)
}

func (a *App) handleDeleteNote(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	deleted, err := repo.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !deleted {
		return notFound(c, "note")
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAddAnnotation(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	var annotation note.Annotation
	if err := c.Bind(&annotation); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := annotation.Validate(); err != nil {
		return badRequest(c, err.Error())
	}
	n, err := repo.AddAnnotation(c.Request().Context(), c.Param("id"), annotation)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (a *App) handleUpdateAnnotation(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	var upd note.AnnotationUpdate
	if err := c.Bind(&upd); err != nil {
		return badRequest(c, "invalid request body")
	}
	n, err := repo.UpdateAnnotation(c.Request().Context(), c.Param("id"), c.Param("annotationId"), upd)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, n)
}

func (a *App) handleRemoveAnnotation(c echo.Context) error {
	repo, err := a.factory.Notes()
	if err != nil {
		return writeError(c, err)
	}
	n, err := repo.RemoveAnnotation(c.Request().Context(), c.Param("id"), c.Param("annotationId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, n)
}

func (a *App) handleSwitchEngine(c echo.Context) error {
	var req switchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	engine := config.EngineType(req.DatabaseType)
	if !engine.Valid() {
		return badRequest(c, "unknown database type: "+req.DatabaseType)
	}
	if err := a.factory.SwitchEngine(c.Request().Context(), engine); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"engine": string(engine)})
}

func (a *App) handleMigrate(c echo.Context) error {
	if a.migrator == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "migration unavailable"})
	}
	var req migrateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	from := config.EngineType(req.FromDatabase)
	to := config.EngineType(req.ToDatabase)
	if from != config.EngineRelational && from != config.EngineDocument {
		return badRequest(c, "fromDatabase must be relational or document")
	}
	if to != config.EngineRelational && to != config.EngineDocument {
		return badRequest(c, "toDatabase must be relational or document")
	}
	if from == to {
		return badRequest(c, "fromDatabase and toDatabase are the same")
	}

	result, err := a.migrator.Run(c.Request().Context(), from, to)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": result.Status(),
		"result": result,
	})
}

func (a *App) handleStats(c echo.Context) error {
	engine := a.factory.ActiveEngine()
	if v := c.QueryParam("type"); v != "" {
		requested := config.EngineType(v)
		if requested != config.EngineRelational && requested != config.EngineDocument {
			return badRequest(c, "type must be relational or document")
		}
		engine = requested
	}

	var papersRepo repository.PaperRepository
	var notesRepo repository.NoteRepository
	var err error
	if engine == config.EngineHybrid {
		papersRepo, err = a.factory.Papers()
		if err == nil {
			notesRepo, err = a.factory.Notes()
		}
	} else {
		papersRepo, err = a.factory.EnginePapers(engine)
		if err == nil {
			notesRepo, err = a.factory.EngineNotes(engine)
		}
	}
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	resp := statsResponse{Engine: string(engine)}
	if resp.Papers, err = papersRepo.Count(ctx); err != nil {
		return writeError(c, err)
	}
	if resp.Notes, err = notesRepo.Count(ctx); err != nil {
		return writeError(c, err)
	}
	if engine == config.EngineRelational && a.factory.ActiveEngine() == config.EngineRelational {
		citations, err := a.factory.Citations()
		if err == nil {
			if n, err := citations.Count(ctx); err == nil {
				resp.Citations = &n
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func intQuery(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// parseDate accepts RFC 3339 timestamps and bare dates.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
