package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/repository"
)

const selectCitationFields = `id, source_id, target_id, context, citation_type, page, created_at`

// GetCitations returns the outgoing citations of a paper.
func (r *PaperRepository) GetCitations(ctx context.Context, paperID string) ([]paper.Citation, error) {
	return queryCitations(ctx, r.db, "loading citations", `
		SELECT `+selectCitationFields+` FROM citations
		WHERE source_id = ?
		ORDER BY target_id
	`, paperID)
}

// GetCitedBy returns the incoming citations of a paper.
func (r *PaperRepository) GetCitedBy(ctx context.Context, paperID string) ([]paper.Citation, error) {
	return queryCitations(ctx, r.db, "loading citing papers", `
		SELECT `+selectCitationFields+` FROM citations
		WHERE target_id = ?
		ORDER BY source_id
	`, paperID)
}

// AddCitation records that the source paper cites the target paper.
// Both papers must exist; the ordered pair must not already be cited.
func (r *PaperRepository) AddCitation(ctx context.Context, c *paper.Citation) (*paper.Citation, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}
	for _, id := range []string{c.SourceID, c.TargetID} {
		ok, err := r.paperExists(ctx, id)
		if err != nil {
			return nil, translateErr("adding citation", err)
		}
		if !ok {
			return nil, fmt.Errorf("adding citation: paper %s: %w", id, repository.ErrNotFound)
		}
	}

	created := *c
	created.ID = uuid.NewString()
	created.CreatedAt = time.Now().UTC()

	_, err := r.db.db.ExecContext(ctx, `
		INSERT INTO citations (id, source_id, target_id, context, citation_type, page, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, created.ID, created.SourceID, created.TargetID, nullableStringValue(created.Context),
		string(created.Type), created.Page, timeToNano(created.CreatedAt))
	if err != nil {
		return nil, translateErr("adding citation", err)
	}
	return &created, nil
}

// RemoveCitation deletes the citation for the ordered (source, target)
// pair. Returns false when no such citation exists.
func (r *PaperRepository) RemoveCitation(ctx context.Context, sourceID, targetID string) (bool, error) {
	res, err := r.db.db.ExecContext(ctx,
		`DELETE FROM citations WHERE source_id = ? AND target_id = ?`, sourceID, targetID)
	if err != nil {
		return false, translateErr("removing citation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translateErr("removing citation", err)
	}
	return n > 0, nil
}

// GetCitationCount returns how many papers cite the given paper.
func (r *PaperRepository) GetCitationCount(ctx context.Context, paperID string) (int, error) {
	var count int
	err := r.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM citations WHERE target_id = ?`, paperID).Scan(&count)
	if err != nil {
		return 0, translateErr("counting citations", err)
	}
	return count, nil
}

// GetCitationNetwork walks the citation graph breadth-first to the
// requested depth in both directions.
func (r *PaperRepository) GetCitationNetwork(ctx context.Context, paperID string, depth int) (*repository.CitationNetwork, error) {
	return repository.BuildCitationNetwork(ctx, r, paperID, depth)
}

func (r *PaperRepository) paperExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.db.QueryRowContext(ctx, `SELECT 1 FROM papers WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CitationRepository implements repository.CitationRepository on SQLite.
// Only the relational engine offers direct citation-record access.
type CitationRepository struct {
	db     *DB
	papers *PaperRepository
}

var _ repository.CitationRepository = (*CitationRepository)(nil)

// NewCitationRepository creates a citation repository bound to db.
func NewCitationRepository(db *DB) *CitationRepository {
	return &CitationRepository{db: db, papers: NewPaperRepository(db)}
}

// Create records a citation. Same constraints as PaperRepository.AddCitation.
func (r *CitationRepository) Create(ctx context.Context, c *paper.Citation) (*paper.Citation, error) {
	return r.papers.AddCitation(ctx, c)
}

// FindByID retrieves a citation by id. Returns (nil, nil) when absent.
func (r *CitationRepository) FindByID(ctx context.Context, id string) (*paper.Citation, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+selectCitationFields+` FROM citations WHERE id = ?`, id)
	c, err := scanCitation(row)
	if err != nil {
		return nil, translateErr("finding citation", err)
	}
	return c, nil
}

// FindAll lists citations newest first.
func (r *CitationRepository) FindAll(ctx context.Context, limit, offset int) ([]paper.Citation, error) {
	if limit <= 0 {
		limit = -1
	}
	return queryCitations(ctx, r.db, "listing citations", `
		SELECT `+selectCitationFields+` FROM citations
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?
	`, limit, offset)
}

// Delete removes a citation by id. Returns false when absent.
func (r *CitationRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM citations WHERE id = ?`, id)
	if err != nil {
		return false, translateErr("deleting citation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translateErr("deleting citation", err)
	}
	return n > 0, nil
}

// Count returns the total number of citations.
func (r *CitationRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM citations`).Scan(&count)
	if err != nil {
		return 0, translateErr("counting citations", err)
	}
	return count, nil
}

// FindBySource returns all citations made by a paper.
func (r *CitationRepository) FindBySource(ctx context.Context, sourceID string) ([]paper.Citation, error) {
	return r.papers.GetCitations(ctx, sourceID)
}

// FindByTarget returns all citations received by a paper.
func (r *CitationRepository) FindByTarget(ctx context.Context, targetID string) ([]paper.Citation, error) {
	return r.papers.GetCitedBy(ctx, targetID)
}

// FindByPair retrieves the citation for an ordered (source, target)
// pair. Returns (nil, nil) when absent.
func (r *CitationRepository) FindByPair(ctx context.Context, sourceID, targetID string) (*paper.Citation, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+selectCitationFields+` FROM citations WHERE source_id = ? AND target_id = ?`,
		sourceID, targetID)
	c, err := scanCitation(row)
	if err != nil {
		return nil, translateErr("finding citation pair", err)
	}
	return c, nil
}

func queryCitations(ctx context.Context, db *DB, op, query string, args ...interface{}) ([]paper.Citation, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(op, err)
	}
	defer rows.Close()

	var citations []paper.Citation
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, translateErr(op, err)
		}
		if c != nil {
			citations = append(citations, *c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(op, err)
	}
	return citations, nil
}

func scanCitation(s scanner) (*paper.Citation, error) {
	var c paper.Citation
	var context sql.NullString
	var citationType string
	var createdAt int64

	err := s.Scan(&c.ID, &c.SourceID, &c.TargetID, &context, &citationType, &c.Page, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.Context = context.String
	c.Type = paper.CitationType(citationType)
	c.CreatedAt = nanoToTime(createdAt)
	return &c, nil
}
