// Package paper defines the core domain types for research papers.
package paper

import (
	"errors"
	"time"
)

// Paper represents a research paper or article.
type Paper struct {
	// Identity (engine-generated)
	ID  string `json:"id"`
	DOI string `json:"doi,omitempty"` // unique across all papers when present

	// Metadata
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Authors  []Author `json:"authors"` // ordered, determines display/citation order

	// Venue
	Journal    string `json:"journal,omitempty"`
	Conference string `json:"conference,omitempty"`

	PublishedAt time.Time `json:"published_at"`

	// File locations
	URL      string `json:"url,omitempty"`
	FilePath string `json:"file_path,omitempty"`

	// Outgoing citation target ids. Populated on single-paper reads
	// (FindByID, FindByDOI); list results leave it empty.
	CitedPaperIDs []string `json:"cited_paper_ids,omitempty"`

	// Open metadata bag
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that a paper is well formed before it reaches storage.
func (p *Paper) Validate() error {
	if p.Title == "" {
		return errors.New("title is required")
	}
	for i := range p.Authors {
		if p.Authors[i].Name == "" {
			return errors.New("author name is required")
		}
	}
	return nil
}

// Update describes a partial modification of a paper. Nil fields are
// left untouched; set fields replace the existing value wholesale.
type Update struct {
	Title       *string            `json:"title,omitempty"`
	Abstract    *string            `json:"abstract,omitempty"`
	Keywords    *[]string          `json:"keywords,omitempty"`
	Authors     *[]Author          `json:"authors,omitempty"`
	Journal     *string            `json:"journal,omitempty"`
	Conference  *string            `json:"conference,omitempty"`
	DOI         *string            `json:"doi,omitempty"`
	URL         *string            `json:"url,omitempty"`
	FilePath    *string            `json:"file_path,omitempty"`
	PublishedAt *time.Time         `json:"published_at,omitempty"`
	Metadata    *map[string]string `json:"metadata,omitempty"`
}

// Apply merges the update into p. Authors are replaced as a full list,
// never patched incrementally.
func (u Update) Apply(p *Paper) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Abstract != nil {
		p.Abstract = *u.Abstract
	}
	if u.Keywords != nil {
		p.Keywords = *u.Keywords
	}
	if u.Authors != nil {
		p.Authors = *u.Authors
	}
	if u.Journal != nil {
		p.Journal = *u.Journal
	}
	if u.Conference != nil {
		p.Conference = *u.Conference
	}
	if u.DOI != nil {
		p.DOI = *u.DOI
	}
	if u.URL != nil {
		p.URL = *u.URL
	}
	if u.FilePath != nil {
		p.FilePath = *u.FilePath
	}
	if u.PublishedAt != nil {
		p.PublishedAt = *u.PublishedAt
	}
	if u.Metadata != nil {
		p.Metadata = *u.Metadata
	}
}
