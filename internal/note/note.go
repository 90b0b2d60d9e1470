// Package note defines annotated research notes. A note may stand alone
// or reference a paper; its annotations are an ordered list owned by the
// note and never exist independently of it.
package note

import (
	"errors"
	"fmt"
	"time"
)

// AnnotationType classifies an annotation on a note.
type AnnotationType string

const (
	AnnotationHighlight AnnotationType = "highlight"
	AnnotationComment   AnnotationType = "comment"
	AnnotationBookmark  AnnotationType = "bookmark"
)

// Valid reports whether the annotation type is one of the known kinds.
func (t AnnotationType) Valid() bool {
	switch t {
	case AnnotationHighlight, AnnotationComment, AnnotationBookmark:
		return true
	}
	return false
}

// Annotation is a positioned mark on a page. Created, updated and
// deleted only through its owning note.
type Annotation struct {
	ID     string         `json:"id"`
	Type   AnnotationType `json:"type"`
	Page   int            `json:"page"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Width  float64        `json:"width,omitempty"`
	Height float64        `json:"height,omitempty"`
	Text   string         `json:"text,omitempty"`
	Color  string         `json:"color,omitempty"`
}

// Validate checks that an annotation is well formed.
func (a *Annotation) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("unknown annotation type: %s", a.Type)
	}
	return nil
}

// Note is a free-text note with tags and embedded annotations.
type Note struct {
	ID          string       `json:"id"`
	PaperID     string       `json:"paper_id,omitempty"` // empty for standalone notes
	Content     string       `json:"content"`
	Tags        []string     `json:"tags,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"` // ordered
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Validate checks that a note is well formed before it reaches storage.
func (n *Note) Validate() error {
	if n.Content == "" {
		return errors.New("content is required")
	}
	for i := range n.Annotations {
		if err := n.Annotations[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Update describes a partial modification of a note. Annotations are
// mutated only through the dedicated annotation operations.
type Update struct {
	PaperID *string   `json:"paper_id,omitempty"`
	Content *string   `json:"content,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

// Apply merges the update into n.
func (u Update) Apply(n *Note) {
	if u.PaperID != nil {
		n.PaperID = *u.PaperID
	}
	if u.Content != nil {
		n.Content = *u.Content
	}
	if u.Tags != nil {
		n.Tags = *u.Tags
	}
}

// AnnotationUpdate describes a partial modification of a single annotation.
type AnnotationUpdate struct {
	Type   *AnnotationType `json:"type,omitempty"`
	Page   *int            `json:"page,omitempty"`
	X      *float64        `json:"x,omitempty"`
	Y      *float64        `json:"y,omitempty"`
	Width  *float64        `json:"width,omitempty"`
	Height *float64        `json:"height,omitempty"`
	Text   *string         `json:"text,omitempty"`
	Color  *string         `json:"color,omitempty"`
}

// Apply merges the update into a.
func (u AnnotationUpdate) Apply(a *Annotation) {
	if u.Type != nil {
		a.Type = *u.Type
	}
	if u.Page != nil {
		a.Page = *u.Page
	}
	if u.X != nil {
		a.X = *u.X
	}
	if u.Y != nil {
		a.Y = *u.Y
	}
	if u.Width != nil {
		a.Width = *u.Width
	}
	if u.Height != nil {
		a.Height = *u.Height
	}
	if u.Text != nil {
		a.Text = *u.Text
	}
	if u.Color != nil {
		a.Color = *u.Color
	}
}
