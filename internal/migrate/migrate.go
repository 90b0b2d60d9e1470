// Package migrate copies papers, citations and notes from one storage
// engine to the other. The routine deduplicates against what the target
// already holds, verifies record counts, and only then deletes the
// source records. It is abortable via context up to the deletion phase
// and never treats a partial outcome as an error: the Result says what
// happened.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/papervault/papervault/internal/config"
	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/repository"
)

// standaloneNotePrefixLen bounds the content prefix used to find
// duplicate candidates for notes without a paper reference.
const standaloneNotePrefixLen = 64

// Provider hands the migration engine its repositories and the
// exclusive-operation token. *factory.Factory satisfies it; tests
// substitute fault-injecting fakes.
type Provider interface {
	ActiveEngine() config.EngineType
	BeginExclusive() (func(), error)
	SetEngine(engine config.EngineType) error
	EnginePapers(engine config.EngineType) (repository.PaperRepository, error)
	EngineNotes(engine config.EngineType) (repository.NoteRepository, error)
}

// Stats counts the outcome per entity kind.
type Stats struct {
	Scanned    int `json:"scanned"`
	Copied     int `json:"copied"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Deleted    int `json:"deleted"`
}

// reconciled reports whether every scanned record is accounted for.
func (s Stats) reconciled() bool {
	return s.Copied+s.Duplicates == s.Scanned
}

// Result describes one migration run.
type Result struct {
	From      config.EngineType `json:"from"`
	To        config.EngineType `json:"to"`
	Papers    Stats             `json:"papers"`
	Citations Stats             `json:"citations"`
	Notes     Stats             `json:"notes"`
	Complete  bool              `json:"complete"` // counts verified, source deleted
	Aborted   bool              `json:"aborted"`
	Errors    []string          `json:"errors,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Status summarizes the run in one line.
func (r *Result) Status() string {
	switch {
	case r.Aborted:
		return "aborted, source untouched"
	case r.Complete:
		return "complete"
	default:
		return "partial, source retained"
	}
}

// Engine runs migrations between the two storage engines.
type Engine struct {
	provider Provider
	logger   *slog.Logger
	pageSize int
	limiter  *rate.Limiter
}

// New creates a migration engine. pageSize bounds each source read;
// ratePerSecond throttles per-record copies, zero means unthrottled.
func New(provider Provider, logger *slog.Logger, pageSize int, ratePerSecond float64) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Engine{provider: provider, logger: logger, pageSize: pageSize, limiter: limiter}
}

// Run migrates all papers, citations and notes from one engine to the
// other. Both must be concrete storage engines; hybrid is a routing
// mode and cannot take part. The active engine is switched to the
// target for the duration and restored afterwards regardless of
// outcome. Source records are deleted only after the copied and
// duplicate counts add up to the scanned count for both entity kinds.
func (e *Engine) Run(ctx context.Context, from, to config.EngineType) (*Result, error) {
	if from != config.EngineRelational && from != config.EngineDocument {
		return nil, fmt.Errorf("migration source %q is not a storage engine", from)
	}
	if to != config.EngineRelational && to != config.EngineDocument {
		return nil, fmt.Errorf("migration target %q is not a storage engine", to)
	}
	if from == to {
		return nil, fmt.Errorf("migration source and target are both %q", from)
	}

	release, err := e.provider.BeginExclusive()
	if err != nil {
		return nil, fmt.Errorf("starting migration: %w", err)
	}
	defer release()

	srcPapers, err := e.provider.EnginePapers(from)
	if err != nil {
		return nil, fmt.Errorf("opening migration source: %w", err)
	}
	srcNotes, err := e.provider.EngineNotes(from)
	if err != nil {
		return nil, fmt.Errorf("opening migration source: %w", err)
	}
	dstPapers, err := e.provider.EnginePapers(to)
	if err != nil {
		return nil, fmt.Errorf("opening migration target: %w", err)
	}
	dstNotes, err := e.provider.EngineNotes(to)
	if err != nil {
		return nil, fmt.Errorf("opening migration target: %w", err)
	}

	prior := e.provider.ActiveEngine()
	if err := e.provider.SetEngine(to); err != nil {
		return nil, fmt.Errorf("switching to migration target: %w", err)
	}
	defer func() {
		if err := e.provider.SetEngine(prior); err != nil {
			e.logger.Error("restoring engine after migration", "engine", string(prior), "error", err)
		}
	}()

	start := time.Now()
	res := &Result{From: from, To: to}
	e.logger.Info("migration started", "from", string(from), "to", string(to))

	// idMap maps source paper ids to their target counterparts,
	// including papers skipped as duplicates.
	idMap := make(map[string]string)

	e.migratePapers(ctx, res, srcPapers, dstPapers, idMap)
	if ctx.Err() == nil {
		e.migrateCitations(ctx, res, srcPapers, dstPapers, idMap)
	}
	if ctx.Err() == nil {
		e.migrateNotes(ctx, res, srcNotes, dstNotes, idMap)
	}

	if ctx.Err() != nil {
		res.Aborted = true
		res.Duration = time.Since(start)
		e.logger.Warn("migration aborted", "from", string(from), "to", string(to))
		return res, nil
	}

	if res.Papers.reconciled() && res.Notes.reconciled() {
		e.deleteSource(res, srcPapers, srcNotes, idMap)
		res.Complete = true
	} else {
		e.logger.Warn("migration counts did not reconcile, source retained",
			"papers_scanned", res.Papers.Scanned, "papers_copied", res.Papers.Copied,
			"papers_duplicates", res.Papers.Duplicates,
			"notes_scanned", res.Notes.Scanned, "notes_copied", res.Notes.Copied,
			"notes_duplicates", res.Notes.Duplicates)
	}

	res.Duration = time.Since(start)
	e.logger.Info("migration finished", "status", res.Status(),
		"papers_copied", res.Papers.Copied, "notes_copied", res.Notes.Copied,
		"duration", res.Duration)
	return res, nil
}

func (e *Engine) migratePapers(ctx context.Context, res *Result, src, dst repository.PaperRepository, idMap map[string]string) {
	for offset := 0; ; offset += e.pageSize {
		page, err := src.FindAll(ctx, e.pageSize, offset)
		if err != nil {
			res.fail(&res.Papers, e.logger, "reading source papers", err)
			return
		}
		if len(page) == 0 {
			return
		}
		for i := range page {
			if ctx.Err() != nil {
				return
			}
			if !e.wait(ctx) {
				return
			}
			e.copyPaper(ctx, res, src, dst, &page[i], idMap)
		}
		if len(page) < e.pageSize {
			return
		}
	}
}

func (e *Engine) copyPaper(ctx context.Context, res *Result, src, dst repository.PaperRepository, p *paper.Paper, idMap map[string]string) {
	res.Papers.Scanned++

	existing, err := e.findDuplicatePaper(ctx, dst, p)
	if err != nil {
		res.fail(&res.Papers, e.logger, fmt.Sprintf("checking paper %s for duplicates", p.ID), err)
		return
	}
	if existing != nil {
		res.Papers.Duplicates++
		idMap[p.ID] = existing.ID
		return
	}

	copy := *p
	copy.ID = ""
	copy.CreatedAt = time.Time{}
	copy.UpdatedAt = time.Time{}
	copy.CitedPaperIDs = nil
	copy.Authors = append([]paper.Author(nil), p.Authors...)
	for i := range copy.Authors {
		copy.Authors[i].ID = ""
	}

	created, err := dst.Create(ctx, &copy)
	if err != nil {
		res.fail(&res.Papers, e.logger, fmt.Sprintf("copying paper %s", p.ID), err)
		return
	}
	res.Papers.Copied++
	idMap[p.ID] = created.ID
}

// findDuplicatePaper applies the dedup rule: DOI when the source paper
// has one, otherwise a case-insensitive exact title match.
func (e *Engine) findDuplicatePaper(ctx context.Context, dst repository.PaperRepository, p *paper.Paper) (*paper.Paper, error) {
	if p.DOI != "" {
		return dst.FindByDOI(ctx, p.DOI)
	}
	found, err := dst.Search(ctx, repository.SearchParams{Query: p.Title, Limit: 100})
	if err != nil {
		return nil, err
	}
	for i := range found.Papers {
		if strings.EqualFold(found.Papers[i].Title, p.Title) {
			return &found.Papers[i], nil
		}
	}
	return nil, nil
}

// migrateCitations recreates the citation graph on the target using the
// paper id mapping. Pairs the target already knows are counted as
// duplicates.
func (e *Engine) migrateCitations(ctx context.Context, res *Result, src, dst repository.PaperRepository, idMap map[string]string) {
	for srcID, dstID := range idMap {
		if ctx.Err() != nil {
			return
		}
		citations, err := src.GetCitations(ctx, srcID)
		if err != nil {
			res.fail(&res.Citations, e.logger, fmt.Sprintf("reading citations of paper %s", srcID), err)
			continue
		}
		for i := range citations {
			if ctx.Err() != nil {
				return
			}
			if !e.wait(ctx) {
				return
			}
			res.Citations.Scanned++
			target, ok := idMap[citations[i].TargetID]
			if !ok {
				res.fail(&res.Citations, e.logger,
					fmt.Sprintf("citation target %s was not migrated", citations[i].TargetID), nil)
				continue
			}
			copy := citations[i]
			copy.ID = ""
			copy.SourceID = dstID
			copy.TargetID = target
			copy.CreatedAt = time.Time{}
			if _, err := dst.AddCitation(ctx, &copy); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					res.Citations.Duplicates++
					continue
				}
				res.fail(&res.Citations, e.logger,
					fmt.Sprintf("copying citation %s -> %s", srcID, citations[i].TargetID), err)
				continue
			}
			res.Citations.Copied++
		}
	}
}

func (e *Engine) migrateNotes(ctx context.Context, res *Result, src, dst repository.NoteRepository, idMap map[string]string) {
	for offset := 0; ; offset += e.pageSize {
		page, err := src.FindAll(ctx, e.pageSize, offset)
		if err != nil {
			res.fail(&res.Notes, e.logger, "reading source notes", err)
			return
		}
		if len(page) == 0 {
			return
		}
		for i := range page {
			if ctx.Err() != nil {
				return
			}
			if !e.wait(ctx) {
				return
			}
			e.copyNote(ctx, res, dst, &page[i], idMap)
		}
		if len(page) < e.pageSize {
			return
		}
	}
}

func (e *Engine) copyNote(ctx context.Context, res *Result, dst repository.NoteRepository, n *note.Note, idMap map[string]string) {
	res.Notes.Scanned++

	mappedPaperID := idMap[n.PaperID]

	dup, err := e.findDuplicateNote(ctx, dst, n, mappedPaperID)
	if err != nil {
		res.fail(&res.Notes, e.logger, fmt.Sprintf("checking note %s for duplicates", n.ID), err)
		return
	}
	if dup {
		res.Notes.Duplicates++
		return
	}

	copy := *n
	copy.ID = ""
	copy.PaperID = mappedPaperID
	copy.CreatedAt = time.Time{}
	copy.UpdatedAt = time.Time{}
	copy.Annotations = append([]note.Annotation(nil), n.Annotations...)
	for i := range copy.Annotations {
		copy.Annotations[i].ID = ""
	}

	if _, err := dst.Create(ctx, &copy); err != nil {
		res.fail(&res.Notes, e.logger, fmt.Sprintf("copying note %s", n.ID), err)
		return
	}
	res.Notes.Copied++
}

// findDuplicateNote applies the note dedup rule: candidates share the
// mapped paper id, or for standalone notes are found by a content
// prefix search; a duplicate has identical content and the same tag set
// regardless of order.
func (e *Engine) findDuplicateNote(ctx context.Context, dst repository.NoteRepository, n *note.Note, mappedPaperID string) (bool, error) {
	var candidates []note.Note
	var err error
	if mappedPaperID != "" {
		candidates, err = dst.FindByPaperID(ctx, mappedPaperID)
	} else {
		prefix := n.Content
		if len(prefix) > standaloneNotePrefixLen {
			prefix = prefix[:standaloneNotePrefixLen]
		}
		candidates, err = dst.FindByContent(ctx, prefix)
	}
	if err != nil {
		return false, err
	}
	for i := range candidates {
		if candidates[i].Content == n.Content && sameTagSet(candidates[i].Tags, n.Tags) {
			return true, nil
		}
	}
	return false, nil
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// deleteSource removes the migrated records from the source engine.
// Individual failures are logged and counted, never fatal: the target
// already holds every record.
func (e *Engine) deleteSource(res *Result, srcPapers repository.PaperRepository, srcNotes repository.NoteRepository, idMap map[string]string) {
	ctx := context.Background()

	notes, err := srcNotes.FindAll(ctx, 0, 0)
	if err != nil {
		res.record(e.logger, "listing source notes for deletion", err)
	}
	for i := range notes {
		if _, err := srcNotes.Delete(ctx, notes[i].ID); err != nil {
			res.record(e.logger, fmt.Sprintf("deleting source note %s", notes[i].ID), err)
			continue
		}
		res.Notes.Deleted++
	}

	// Paper deletion cascades the source citations.
	for srcID := range idMap {
		if _, err := srcPapers.Delete(ctx, srcID); err != nil {
			res.record(e.logger, fmt.Sprintf("deleting source paper %s", srcID), err)
			continue
		}
		res.Papers.Deleted++
	}
}

// wait applies the per-record throttle. Returns false when the context
// ended while waiting.
func (e *Engine) wait(ctx context.Context) bool {
	if e.limiter == nil {
		return true
	}
	return e.limiter.Wait(ctx) == nil
}

func (r *Result) fail(s *Stats, logger *slog.Logger, op string, err error) {
	s.Failed++
	r.record(logger, op, err)
}

func (r *Result) record(logger *slog.Logger, op string, err error) {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	r.Errors = append(r.Errors, msg)
	logger.Error("migration error", "detail", msg)
}
