package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/repository"
)

// selectPaperFields contains the standard field list for SELECT queries.
const selectPaperFields = `id, title, abstract, keywords_json, journal, conference,
	doi, url, file_path, published_at, metadata_json, created_at, updated_at`

// defaultPageSize bounds unpaged list queries.
const defaultPageSize = 50

// PaperRepository implements repository.PaperRepository on SQLite.
type PaperRepository struct {
	db *DB
}

var _ repository.PaperRepository = (*PaperRepository)(nil)

// NewPaperRepository creates a paper repository bound to db.
func NewPaperRepository(db *DB) *PaperRepository {
	return &PaperRepository{db: db}
}

// Create inserts a paper and its author list in a single transaction:
// the paper row, then per author in input order a find-or-create on
// (name, email), then a join row with the position index. Any failure
// rolls the whole sequence back.
func (r *PaperRepository) Create(ctx context.Context, p *paper.Paper) (*paper.Paper, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	now := time.Now().UTC()
	created := *p
	created.ID = uuid.NewString()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.CitedPaperIDs = nil

	keywordsJSON, err := marshalJSON(created.Keywords)
	if err != nil {
		return nil, fmt.Errorf("encoding keywords: %w", err)
	}
	metadataJSON, err := marshalJSON(created.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("creating paper: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO papers (
			id, title, abstract, keywords_json, journal, conference,
			doi, url, file_path, published_at, metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		created.ID, created.Title, nullableStringValue(created.Abstract), keywordsJSON,
		nullableStringValue(created.Journal), nullableStringValue(created.Conference),
		nullableStringValue(created.DOI), nullableStringValue(created.URL),
		nullableStringValue(created.FilePath), timeToNano(created.PublishedAt),
		metadataJSON, timeToNano(created.CreatedAt), timeToNano(created.UpdatedAt),
	)
	if err != nil {
		return nil, translateErr("creating paper", err)
	}

	authors, err := linkAuthors(ctx, tx, created.ID, created.Authors)
	if err != nil {
		return nil, translateErr("linking authors", err)
	}
	created.Authors = authors

	if err := tx.Commit(); err != nil {
		return nil, translateErr("creating paper", err)
	}
	return &created, nil
}

// linkAuthors finds or creates an author row per entry (matched on
// name and email) and records the join row with its position index.
func linkAuthors(ctx context.Context, tx *sql.Tx, paperID string, authors []paper.Author) ([]paper.Author, error) {
	linked := make([]paper.Author, 0, len(authors))
	for i, a := range authors {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM authors WHERE name = ? AND email = ?`, a.Name, a.Email,
		).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			id = uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO authors (id, name, affiliation, email) VALUES (?, ?, ?, ?)`,
				id, a.Name, nullableStringValue(a.Affiliation), a.Email,
			); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO paper_authors (paper_id, author_id, position) VALUES (?, ?, ?)`,
			paperID, id, i,
		); err != nil {
			return nil, err
		}

		a.ID = id
		linked = append(linked, a)
	}
	return linked, nil
}

// FindByID retrieves a paper by id, with its ordered authors and
// outgoing citation target ids. Returns (nil, nil) when absent.
func (r *PaperRepository) FindByID(ctx context.Context, id string) (*paper.Paper, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if err != nil {
		return nil, translateErr("finding paper", err)
	}
	if p == nil {
		return nil, nil
	}
	return r.hydrate(ctx, p)
}

// FindByDOI retrieves a paper by DOI. Returns (nil, nil) when absent.
func (r *PaperRepository) FindByDOI(ctx context.Context, doi string) (*paper.Paper, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+selectPaperFields+` FROM papers WHERE doi = ?`, doi)
	p, err := scanPaper(row)
	if err != nil {
		return nil, translateErr("finding paper by doi", err)
	}
	if p == nil {
		return nil, nil
	}
	return r.hydrate(ctx, p)
}

// hydrate loads authors and outgoing citation ids for a single paper.
func (r *PaperRepository) hydrate(ctx context.Context, p *paper.Paper) (*paper.Paper, error) {
	authors, err := r.authorsFor(ctx, p.ID)
	if err != nil {
		return nil, translateErr("loading authors", err)
	}
	p.Authors = authors

	rows, err := r.db.db.QueryContext(ctx,
		`SELECT target_id FROM citations WHERE source_id = ? ORDER BY target_id`, p.ID)
	if err != nil {
		return nil, translateErr("loading citation targets", err)
	}
	defer rows.Close()
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, translateErr("loading citation targets", err)
		}
		p.CitedPaperIDs = append(p.CitedPaperIDs, target)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("loading citation targets", err)
	}
	return p, nil
}

func (r *PaperRepository) authorsFor(ctx context.Context, paperID string) ([]paper.Author, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.affiliation, a.email
		FROM authors a
		JOIN paper_authors pa ON pa.author_id = a.id
		WHERE pa.paper_id = ?
		ORDER BY pa.position
	`, paperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []paper.Author
	for rows.Next() {
		var a paper.Author
		var affiliation sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &affiliation, &a.Email); err != nil {
			return nil, err
		}
		a.Affiliation = affiliation.String
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// FindAll lists papers newest-created first. Citation target ids are
// not loaded for list results.
func (r *PaperRepository) FindAll(ctx context.Context, limit, offset int) ([]paper.Paper, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT `+selectPaperFields+` FROM papers ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, translateErr("listing papers", err)
	}
	defer rows.Close()

	papers, err := scanPapers(rows)
	if err != nil {
		return nil, translateErr("listing papers", err)
	}
	return r.withAuthors(ctx, papers)
}

func (r *PaperRepository) withAuthors(ctx context.Context, papers []paper.Paper) ([]paper.Paper, error) {
	for i := range papers {
		authors, err := r.authorsFor(ctx, papers[i].ID)
		if err != nil {
			return nil, translateErr("loading authors", err)
		}
		papers[i].Authors = authors
	}
	return papers, nil
}

// Update merges the partial update into the stored paper. When an
// author list is supplied the full join set is rewritten: all existing
// join rows are deleted and reinserted in the new order. Returns
// (nil, nil) when the paper does not exist.
func (r *PaperRepository) Update(ctx context.Context, id string, upd paper.Update) (*paper.Paper, error) {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("updating paper: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	existing, err := scanPaper(row)
	if err != nil {
		return nil, translateErr("updating paper", err)
	}
	if existing == nil {
		return nil, nil
	}

	merged := *existing
	upd.Apply(&merged)
	merged.UpdatedAt = time.Now().UTC()

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	keywordsJSON, err := marshalJSON(merged.Keywords)
	if err != nil {
		return nil, fmt.Errorf("encoding keywords: %w", err)
	}
	metadataJSON, err := marshalJSON(merged.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE papers SET
			title = ?, abstract = ?, keywords_json = ?, journal = ?, conference = ?,
			doi = ?, url = ?, file_path = ?, published_at = ?, metadata_json = ?, updated_at = ?
		WHERE id = ?
	`,
		merged.Title, nullableStringValue(merged.Abstract), keywordsJSON,
		nullableStringValue(merged.Journal), nullableStringValue(merged.Conference),
		nullableStringValue(merged.DOI), nullableStringValue(merged.URL),
		nullableStringValue(merged.FilePath), timeToNano(merged.PublishedAt),
		metadataJSON, timeToNano(merged.UpdatedAt), id,
	)
	if err != nil {
		return nil, translateErr("updating paper", err)
	}

	if upd.Authors != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM paper_authors WHERE paper_id = ?`, id); err != nil {
			return nil, translateErr("rewriting authors", err)
		}
		authors, err := linkAuthors(ctx, tx, id, merged.Authors)
		if err != nil {
			return nil, translateErr("rewriting authors", err)
		}
		merged.Authors = authors
	}

	if err := tx.Commit(); err != nil {
		return nil, translateErr("updating paper", err)
	}

	return r.hydrate(ctx, &merged)
}

// Delete removes a paper. Citations cascade; notes referencing it keep
// existing with their paper reference cleared. Returns false when the
// paper does not exist.
func (r *PaperRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id)
	if err != nil {
		return false, translateErr("deleting paper", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translateErr("deleting paper", err)
	}
	return n > 0, nil
}

// Count returns the total number of papers.
func (r *PaperRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&count)
	if err != nil {
		return 0, translateErr("counting papers", err)
	}
	return count, nil
}

// Search runs a conjunctive filtered query with paging. The tie-break,
// and the ordering when no sort key is given, is creation time
// descending.
func (r *PaperRepository) Search(ctx context.Context, params repository.SearchParams) (*repository.SearchResult, error) {
	where := []string{"1=1"}
	var args []interface{}

	likeQuery := "%" + params.Query + "%"
	if params.Query != "" {
		where = append(where, "(title LIKE ? OR abstract LIKE ? OR keywords_json LIKE ?)")
		args = append(args, likeQuery, likeQuery, likeQuery)
	}
	if params.Author != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM paper_authors pa JOIN authors a ON a.id = pa.author_id
			WHERE pa.paper_id = papers.id AND a.name LIKE ?)`)
		args = append(args, "%"+params.Author+"%")
	}
	if params.Keyword != "" {
		// Exact membership against the JSON-encoded keyword array
		where = append(where, "keywords_json LIKE ?")
		args = append(args, `%"`+params.Keyword+`"%`)
	}
	if params.Journal != "" {
		where = append(where, "journal LIKE ?")
		args = append(args, "%"+params.Journal+"%")
	}
	if params.Conference != "" {
		where = append(where, "conference LIKE ?")
		args = append(args, "%"+params.Conference+"%")
	}
	if !params.From.IsZero() {
		where = append(where, "published_at >= ?")
		args = append(args, timeToNano(params.From))
	}
	if !params.To.IsZero() {
		where = append(where, "published_at <= ?")
		args = append(args, timeToNano(params.To))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM papers WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, translateErr("searching papers", err)
	}

	orderBy := "created_at DESC, id"
	var orderArgs []interface{}
	switch params.SortBy {
	case repository.SortDate:
		orderBy = "published_at DESC, created_at DESC, id"
	case repository.SortTitle:
		orderBy = "title COLLATE NOCASE ASC, created_at DESC, id"
	case repository.SortCitations:
		orderBy = "(SELECT COUNT(*) FROM citations c WHERE c.target_id = papers.id) DESC, created_at DESC, id"
	case repository.SortRelevance:
		if params.Query != "" {
			orderBy = `(CASE WHEN title LIKE ? THEN 4 ELSE 0 END
				+ CASE WHEN abstract LIKE ? THEN 2 ELSE 0 END
				+ CASE WHEN keywords_json LIKE ? THEN 1 ELSE 0 END) DESC, created_at DESC, id`
			orderArgs = append(orderArgs, likeQuery, likeQuery, likeQuery)
		}
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	queryArgs := append(append(args, orderArgs...), limit, params.Offset)
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT `+selectPaperFields+` FROM papers WHERE `+cond+
			` ORDER BY `+orderBy+` LIMIT ? OFFSET ?`, queryArgs...)
	if err != nil {
		return nil, translateErr("searching papers", err)
	}
	defer rows.Close()

	papers, err := scanPapers(rows)
	if err != nil {
		return nil, translateErr("searching papers", err)
	}
	papers, err = r.withAuthors(ctx, papers)
	if err != nil {
		return nil, err
	}

	return &repository.SearchResult{
		Papers: papers,
		Total:  total,
		Limit:  limit,
		Offset: params.Offset,
	}, nil
}

// FindByAuthor returns papers with an author whose name contains the
// given substring, case-insensitively.
func (r *PaperRepository) FindByAuthor(ctx context.Context, name string) ([]paper.Paper, error) {
	return r.queryPapers(ctx, "finding papers by author", `
		SELECT `+selectPaperFields+` FROM papers
		WHERE EXISTS (
			SELECT 1 FROM paper_authors pa JOIN authors a ON a.id = pa.author_id
			WHERE pa.paper_id = papers.id AND a.name LIKE ?)
		ORDER BY created_at DESC, id
	`, "%"+name+"%")
}

// FindByKeyword returns papers whose keyword list contains the exact keyword.
func (r *PaperRepository) FindByKeyword(ctx context.Context, keyword string) ([]paper.Paper, error) {
	return r.queryPapers(ctx, "finding papers by keyword", `
		SELECT `+selectPaperFields+` FROM papers
		WHERE keywords_json LIKE ?
		ORDER BY created_at DESC, id
	`, `%"`+keyword+`"%`)
}

// FindByJournal returns papers whose journal contains the given
// substring, case-insensitively.
func (r *PaperRepository) FindByJournal(ctx context.Context, journal string) ([]paper.Paper, error) {
	return r.queryPapers(ctx, "finding papers by journal", `
		SELECT `+selectPaperFields+` FROM papers
		WHERE journal LIKE ?
		ORDER BY created_at DESC, id
	`, "%"+journal+"%")
}

// FindByDateRange returns papers published within [from, to].
func (r *PaperRepository) FindByDateRange(ctx context.Context, from, to time.Time) ([]paper.Paper, error) {
	return r.queryPapers(ctx, "finding papers by date range", `
		SELECT `+selectPaperFields+` FROM papers
		WHERE published_at >= ? AND published_at <= ?
		ORDER BY published_at DESC, id
	`, timeToNano(from), timeToNano(to))
}

func (r *PaperRepository) queryPapers(ctx context.Context, op, query string, args ...interface{}) ([]paper.Paper, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(op, err)
	}
	defer rows.Close()

	papers, err := scanPapers(rows)
	if err != nil {
		return nil, translateErr(op, err)
	}
	return r.withAuthors(ctx, papers)
}

func scanPaper(s scanner) (*paper.Paper, error) {
	var p paper.Paper
	var abstract, keywordsJSON, journal, conference, doi, url, filePath, metadataJSON sql.NullString
	var publishedAt, createdAt, updatedAt int64

	err := s.Scan(
		&p.ID, &p.Title, &abstract, &keywordsJSON, &journal, &conference,
		&doi, &url, &filePath, &publishedAt, &metadataJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	p.Abstract = abstract.String
	p.Journal = journal.String
	p.Conference = conference.String
	p.DOI = doi.String
	p.URL = url.String
	p.FilePath = filePath.String
	p.PublishedAt = nanoToTime(publishedAt)
	p.CreatedAt = nanoToTime(createdAt)
	p.UpdatedAt = nanoToTime(updatedAt)

	if keywordsJSON.Valid {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &p.Keywords); err != nil {
			return nil, fmt.Errorf("parsing keywords JSON for %s: %w", p.ID, err)
		}
	}
	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("parsing metadata JSON for %s: %w", p.ID, err)
		}
	}

	return &p, nil
}

func scanPapers(rows *sql.Rows) ([]paper.Paper, error) {
	var papers []paper.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		if p != nil {
			papers = append(papers, *p)
		}
	}
	return papers, rows.Err()
}

// marshalJSON encodes a slice or map field, storing NULL when empty.
func marshalJSON(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
