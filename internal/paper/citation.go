package paper

import (
	"fmt"
	"time"
)

// CitationType tags how a source paper cites a target paper.
type CitationType string

const (
	CitationDirect     CitationType = "direct"
	CitationIndirect   CitationType = "indirect"
	CitationSupportive CitationType = "supportive"
	CitationCritical   CitationType = "critical"
	CitationBackground CitationType = "background"
)

// Valid reports whether the citation type is one of the known tags.
func (t CitationType) Valid() bool {
	switch t {
	case CitationDirect, CitationIndirect, CitationSupportive, CitationCritical, CitationBackground:
		return true
	}
	return false
}

// Citation links a source paper to a target paper it cites. At most one
// citation exists per ordered (source, target) pair.
type Citation struct {
	ID        string       `json:"id"`
	SourceID  string       `json:"source_id"`
	TargetID  string       `json:"target_id"`
	Context   string       `json:"context,omitempty"`
	Type      CitationType `json:"type"`
	Page      int          `json:"page,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate checks that a citation is well formed before it reaches storage.
func (c *Citation) Validate() error {
	if c.SourceID == "" || c.TargetID == "" {
		return fmt.Errorf("source and target paper ids are required")
	}
	if c.SourceID == c.TargetID {
		return fmt.Errorf("a paper cannot cite itself")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unknown citation type: %s", c.Type)
	}
	return nil
}
