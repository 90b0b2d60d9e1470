package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/repository"
)

// defaultPageSize bounds unpaged search results.
const defaultPageSize = 50

// PaperRepository implements repository.PaperRepository on the document
// store. Authors are embedded per-paper copies without identity of
// their own; the outgoing citation-id set is denormalized onto the
// paper document and kept in step by the citation operations.
type PaperRepository struct {
	store *Store
}

var _ repository.PaperRepository = (*PaperRepository)(nil)

// NewPaperRepository creates a paper repository bound to the store.
func NewPaperRepository(store *Store) *PaperRepository {
	return &PaperRepository{store: store}
}

// Create stores a paper as a single document. The DOI index key makes
// duplicate DOIs fail distinctly.
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

	// Embedded author copies carry no identity
	created.Authors = append([]paper.Author(nil), p.Authors...)
	for i := range created.Authors {
		created.Authors[i].ID = ""
	}

	err := r.store.WithTx(func(tx *badger.Txn) error {
		if created.DOI != "" {
			exists, err := keyExists(tx, paperDOIKey(created.DOI))
			if err != nil {
				return err
			}
			if exists {
				return repository.ErrDuplicate
			}
			if err := tx.Set(paperDOIKey(created.DOI), []byte(created.ID)); err != nil {
				return err
			}
		}
		if err := writeJSON(tx, paperKey(created.ID), &created); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("creating paper: %w", err)
	}
	return &created, nil
}

// FindByID retrieves a paper document. Returns (nil, nil) when absent.
func (r *PaperRepository) FindByID(ctx context.Context, id string) (*paper.Paper, error) {
	var p paper.Paper
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var err error
		found, err = readJSON(tx, paperKey(id), &p)
		return err
	}, false)
	if err != nil {
		return nil, fmt.Errorf("finding paper: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

// FindByDOI looks a paper up through the DOI index. Returns (nil, nil)
// when absent.
func (r *PaperRepository) FindByDOI(ctx context.Context, doi string) (*paper.Paper, error) {
	var p paper.Paper
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		id, ok, err := readString(tx, paperDOIKey(doi))
		if err != nil || !ok {
			return err
		}
		found, err = readJSON(tx, paperKey(id), &p)
		return err
	}, false)
	if err != nil {
		return nil, fmt.Errorf("finding paper by doi: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

// FindAll lists papers newest-created first.
func (r *PaperRepository) FindAll(ctx context.Context, limit, offset int) ([]paper.Paper, error) {
	papers, err := r.allPapers()
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	sortByCreatedDesc(papers)
	return page(papers, limit, offset), nil
}

func (r *PaperRepository) allPapers() ([]paper.Paper, error) {
	var papers []paper.Paper
	err := r.store.WithTx(func(tx *badger.Txn) error {
		return iteratePrefix(tx, []byte(paperPrefix+":"), func(key, val []byte) error {
			var p paper.Paper
			if err := unmarshalDoc(val, &p); err != nil {
				return err
			}
			papers = append(papers, p)
			return nil
		})
	}, false)
	return papers, err
}

// Update merges the partial update into the stored document and
// rewrites it wholesale. Returns (nil, nil) when the paper is absent.
func (r *PaperRepository) Update(ctx context.Context, id string, upd paper.Update) (*paper.Paper, error) {
	var merged paper.Paper
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var existing paper.Paper
		ok, err := readJSON(tx, paperKey(id), &existing)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		merged = existing
		upd.Apply(&merged)
		merged.UpdatedAt = time.Now().UTC()
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("%w: %v", repository.ErrInvalid, err)
		}
		for i := range merged.Authors {
			merged.Authors[i].ID = ""
		}

		if merged.DOI != existing.DOI {
			if merged.DOI != "" {
				owner, ok, err := readString(tx, paperDOIKey(merged.DOI))
				if err != nil {
					return err
				}
				if ok && owner != id {
					return repository.ErrDuplicate
				}
				if err := tx.Set(paperDOIKey(merged.DOI), []byte(id)); err != nil {
					return err
				}
			}
			if existing.DOI != "" {
				if err := tx.Delete(paperDOIKey(existing.DOI)); err != nil {
					return err
				}
			}
		}

		if err := writeJSON(tx, paperKey(id), &merged); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("updating paper: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &merged, nil
}

// Delete removes the paper document, its DOI index key, and every
// citation involving it. Notes keep their (now dangling) paper id; the
// document engine has no foreign references to clear.
func (r *PaperRepository) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var p paper.Paper
		ok, err := readJSON(tx, paperKey(id), &p)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		if p.DOI != "" {
			if err := tx.Delete(paperDOIKey(p.DOI)); err != nil {
				return err
			}
		}

		// Outgoing citations
		for _, target := range p.CitedPaperIDs {
			if err := tx.Delete(citationKey(id, target)); err != nil {
				return err
			}
			if err := tx.Delete(citationReverseKey(target, id)); err != nil {
				return err
			}
		}

		// Incoming citations: drop the records and fix up each citing
		// paper's denormalized target set
		var sources []string
		if err := iteratePrefix(tx, citationReverseScanPrefix(id), func(key, val []byte) error {
			sources = append(sources, string(val))
			return nil
		}); err != nil {
			return err
		}
		for _, source := range sources {
			if err := tx.Delete(citationKey(source, id)); err != nil {
				return err
			}
			if err := tx.Delete(citationReverseKey(id, source)); err != nil {
				return err
			}
			var citing paper.Paper
			ok, err := readJSON(tx, paperKey(source), &citing)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			citing.CitedPaperIDs = removeString(citing.CitedPaperIDs, id)
			if err := writeJSON(tx, paperKey(source), &citing); err != nil {
				return err
			}
		}

		if err := tx.Delete(paperKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return false, fmt.Errorf("deleting paper: %w", err)
	}
	return found, nil
}

// Count returns the total number of papers.
func (r *PaperRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var err error
		count, err = countPrefix(tx, []byte(paperPrefix+":"))
		return err
	}, false)
	if err != nil {
		return 0, fmt.Errorf("counting papers: %w", err)
	}
	return count, nil
}

// Search filters the full collection in memory with a single
// conjunctive predicate. When no sort is requested results default to
// newest publication date first.
func (r *PaperRepository) Search(ctx context.Context, params repository.SearchParams) (*repository.SearchResult, error) {
	papers, err := r.allPapers()
	if err != nil {
		return nil, fmt.Errorf("searching papers: %w", err)
	}

	var matched []paper.Paper
	for _, p := range papers {
		if matchesParams(&p, params) {
			matched = append(matched, p)
		}
	}

	switch params.SortBy {
	case repository.SortTitle:
		sort.SliceStable(matched, func(i, j int) bool {
			ti, tj := strings.ToLower(matched[i].Title), strings.ToLower(matched[j].Title)
			if ti != tj {
				return ti < tj
			}
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	case repository.SortRelevance:
		if params.Query != "" {
			sort.SliceStable(matched, func(i, j int) bool {
				si, sj := relevance(&matched[i], params.Query), relevance(&matched[j], params.Query)
				if si != sj {
					return si > sj
				}
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			})
		} else {
			sortByCreatedDesc(matched)
		}
	case repository.SortCitations:
		counts := make(map[string]int, len(matched))
		for i := range matched {
			n, err := r.GetCitationCount(ctx, matched[i].ID)
			if err != nil {
				return nil, err
			}
			counts[matched[i].ID] = n
		}
		sort.SliceStable(matched, func(i, j int) bool {
			ci, cj := counts[matched[i].ID], counts[matched[j].ID]
			if ci != cj {
				return ci > cj
			}
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	case repository.SortDate:
		sortByPublishedDesc(matched)
	default:
		sortByPublishedDesc(matched)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	return &repository.SearchResult{
		Papers: page(matched, limit, params.Offset),
		Total:  len(matched),
		Limit:  limit,
		Offset: params.Offset,
	}, nil
}

func matchesParams(p *paper.Paper, params repository.SearchParams) bool {
	if params.Query != "" {
		q := strings.ToLower(params.Query)
		if !strings.Contains(strings.ToLower(p.Title), q) &&
			!strings.Contains(strings.ToLower(p.Abstract), q) &&
			!containsFold(p.Keywords, q) {
			return false
		}
	}
	if params.Author != "" {
		a := strings.ToLower(params.Author)
		found := false
		for _, author := range p.Authors {
			if strings.Contains(strings.ToLower(author.Name), a) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if params.Keyword != "" {
		found := false
		for _, kw := range p.Keywords {
			if kw == params.Keyword {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if params.Journal != "" &&
		!strings.Contains(strings.ToLower(p.Journal), strings.ToLower(params.Journal)) {
		return false
	}
	if params.Conference != "" &&
		!strings.Contains(strings.ToLower(p.Conference), strings.ToLower(params.Conference)) {
		return false
	}
	if !params.From.IsZero() && p.PublishedAt.Before(params.From) {
		return false
	}
	if !params.To.IsZero() && p.PublishedAt.After(params.To) {
		return false
	}
	return true
}

// relevance mirrors the relational variant's match weighting: title
// matches outrank abstract matches outrank keyword matches.
func relevance(p *paper.Paper, query string) int {
	q := strings.ToLower(query)
	score := 0
	if strings.Contains(strings.ToLower(p.Title), q) {
		score += 4
	}
	if strings.Contains(strings.ToLower(p.Abstract), q) {
		score += 2
	}
	if containsFold(p.Keywords, q) {
		score++
	}
	return score
}

func containsFold(values []string, loweredSubstr string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), loweredSubstr) {
			return true
		}
	}
	return false
}

// FindByAuthor returns papers with an embedded author whose name
// contains the given substring, case-insensitively.
func (r *PaperRepository) FindByAuthor(ctx context.Context, name string) ([]paper.Paper, error) {
	return r.filtered("finding papers by author", func(p *paper.Paper) bool {
		n := strings.ToLower(name)
		for _, a := range p.Authors {
			if strings.Contains(strings.ToLower(a.Name), n) {
				return true
			}
		}
		return false
	})
}

// FindByKeyword returns papers whose keyword list contains the exact keyword.
func (r *PaperRepository) FindByKeyword(ctx context.Context, keyword string) ([]paper.Paper, error) {
	return r.filtered("finding papers by keyword", func(p *paper.Paper) bool {
		for _, kw := range p.Keywords {
			if kw == keyword {
				return true
			}
		}
		return false
	})
}

// FindByJournal returns papers whose journal contains the given
// substring, case-insensitively.
func (r *PaperRepository) FindByJournal(ctx context.Context, journal string) ([]paper.Paper, error) {
	return r.filtered("finding papers by journal", func(p *paper.Paper) bool {
		return strings.Contains(strings.ToLower(p.Journal), strings.ToLower(journal))
	})
}

// FindByDateRange returns papers published within [from, to].
func (r *PaperRepository) FindByDateRange(ctx context.Context, from, to time.Time) ([]paper.Paper, error) {
	papers, err := r.filtered("finding papers by date range", func(p *paper.Paper) bool {
		return !p.PublishedAt.Before(from) && !p.PublishedAt.After(to)
	})
	if err != nil {
		return nil, err
	}
	sortByPublishedDesc(papers)
	return papers, nil
}

func (r *PaperRepository) filtered(op string, keep func(*paper.Paper) bool) ([]paper.Paper, error) {
	papers, err := r.allPapers()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out []paper.Paper
	for _, p := range papers {
		if keep(&p) {
			out = append(out, p)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func sortByCreatedDesc(papers []paper.Paper) {
	sort.SliceStable(papers, func(i, j int) bool {
		if !papers[i].CreatedAt.Equal(papers[j].CreatedAt) {
			return papers[i].CreatedAt.After(papers[j].CreatedAt)
		}
		return papers[i].ID < papers[j].ID
	})
}

func sortByPublishedDesc(papers []paper.Paper) {
	sort.SliceStable(papers, func(i, j int) bool {
		if !papers[i].PublishedAt.Equal(papers[j].PublishedAt) {
			return papers[i].PublishedAt.After(papers[j].PublishedAt)
		}
		return papers[i].CreatedAt.After(papers[j].CreatedAt)
	})
}

func page(papers []paper.Paper, limit, offset int) []paper.Paper {
	if offset >= len(papers) {
		return nil
	}
	papers = papers[offset:]
	if limit > 0 && limit < len(papers) {
		papers = papers[:limit]
	}
	return papers
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
