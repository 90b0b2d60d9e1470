// Package repository defines the storage-agnostic contracts implemented
// by both the relational (SQLite) and document (Badger) engine variants.
package repository

import (
	"context"
	"time"

	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/paper"
)

// SortKey selects the ordering of search results.
type SortKey string

const (
	SortDate      SortKey = "date"      // publication date, newest first
	SortTitle     SortKey = "title"     // title, case-insensitive ascending
	SortRelevance SortKey = "relevance" // query match weight, best first
	SortCitations SortKey = "citations" // incoming citation count, most first
)

// SearchParams describes a paper search. All filters are conjunctive.
// Zero values mean "no filter". The tie-break, and the ordering when
// SortBy is empty, is creation time descending (the document variant
// defaults to newest publication date first instead; see the variant).
type SearchParams struct {
	Query      string    `json:"query,omitempty"`      // free text over title/abstract/keywords
	Author     string    `json:"author,omitempty"`     // substring, case-insensitive
	Keyword    string    `json:"keyword,omitempty"`    // exact membership
	Journal    string    `json:"journal,omitempty"`    // substring, case-insensitive
	Conference string    `json:"conference,omitempty"` // substring, case-insensitive
	From       time.Time `json:"from,omitempty"`       // inclusive
	To         time.Time `json:"to,omitempty"`         // inclusive
	SortBy     SortKey   `json:"sort_by,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

// SearchResult is one page of matching papers plus the total match count.
type SearchResult struct {
	Papers []paper.Paper `json:"papers"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// PaperRepository is the storage contract for papers and their citation
// graph. FindByID and FindByDOI return (nil, nil) when no paper matches.
// Update returns (nil, nil) and Delete returns false for unknown ids,
// so callers can tell "not found" from "operation failed".
type PaperRepository interface {
	Create(ctx context.Context, p *paper.Paper) (*paper.Paper, error)
	FindByID(ctx context.Context, id string) (*paper.Paper, error)
	FindAll(ctx context.Context, limit, offset int) ([]paper.Paper, error)
	Update(ctx context.Context, id string, upd paper.Update) (*paper.Paper, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)

	Search(ctx context.Context, params SearchParams) (*SearchResult, error)
	FindByDOI(ctx context.Context, doi string) (*paper.Paper, error)
	FindByAuthor(ctx context.Context, name string) ([]paper.Paper, error)
	FindByKeyword(ctx context.Context, keyword string) ([]paper.Paper, error)
	FindByJournal(ctx context.Context, journal string) ([]paper.Paper, error)
	FindByDateRange(ctx context.Context, from, to time.Time) ([]paper.Paper, error)

	GetCitations(ctx context.Context, paperID string) ([]paper.Citation, error)
	GetCitedBy(ctx context.Context, paperID string) ([]paper.Citation, error)
	AddCitation(ctx context.Context, c *paper.Citation) (*paper.Citation, error)
	RemoveCitation(ctx context.Context, sourceID, targetID string) (bool, error)
	GetCitationCount(ctx context.Context, paperID string) (int, error)
	GetCitationNetwork(ctx context.Context, paperID string, depth int) (*CitationNetwork, error)
}

// NoteRepository is the storage contract for notes. The annotation
// operations fail with ErrNotFound when the note or the named annotation
// is missing, and otherwise return the entire updated note so callers
// always observe a consistent aggregate.
type NoteRepository interface {
	Create(ctx context.Context, n *note.Note) (*note.Note, error)
	FindByID(ctx context.Context, id string) (*note.Note, error)
	FindAll(ctx context.Context, limit, offset int) ([]note.Note, error)
	Update(ctx context.Context, id string, upd note.Update) (*note.Note, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)

	FindByPaperID(ctx context.Context, paperID string) ([]note.Note, error)
	FindByTag(ctx context.Context, tag string) ([]note.Note, error)
	FindByContent(ctx context.Context, text string) ([]note.Note, error)

	AddAnnotation(ctx context.Context, noteID string, a note.Annotation) (*note.Note, error)
	UpdateAnnotation(ctx context.Context, noteID, annotationID string, upd note.AnnotationUpdate) (*note.Note, error)
	RemoveAnnotation(ctx context.Context, noteID, annotationID string) (*note.Note, error)
}

// CitationRepository provides direct access to citation records.
// Only the relational engine implements it; the factory fails fast in
// document and hybrid modes. Paper-level citation operations work in
// every mode.
type CitationRepository interface {
	Create(ctx context.Context, c *paper.Citation) (*paper.Citation, error)
	FindByID(ctx context.Context, id string) (*paper.Citation, error)
	FindAll(ctx context.Context, limit, offset int) ([]paper.Citation, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)

	FindBySource(ctx context.Context, sourceID string) ([]paper.Citation, error)
	FindByTarget(ctx context.Context, targetID string) ([]paper.Citation, error)
	FindByPair(ctx context.Context, sourceID, targetID string) (*paper.Citation, error)
}
