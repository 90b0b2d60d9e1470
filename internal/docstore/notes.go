package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/repository"
)

// NoteRepository implements repository.NoteRepository on the document
// store. A note and its annotations are one document; annotation
// operations rewrite the whole document.
type NoteRepository struct {
	store *Store
}

var _ repository.NoteRepository = (*NoteRepository)(nil)

// NewNoteRepository creates a note repository bound to the store.
func NewNoteRepository(store *Store) *NoteRepository {
	return &NoteRepository{store: store}
}

// Create stores a note with its annotations. The paper reference is
// kept as-is: the document engine holds no foreign constraints.
func (r *NoteRepository) Create(ctx context.Context, n *note.Note) (*note.Note, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	now := time.Now().UTC()
	created := *n
	created.ID = uuid.NewString()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.Annotations = append([]note.Annotation(nil), n.Annotations...)
	for i := range created.Annotations {
		created.Annotations[i].ID = uuid.NewString()
	}

	err := r.store.WithTx(func(tx *badger.Txn) error {
		if err := writeJSON(tx, noteKey(created.ID), &created); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}
	return &created, nil
}

// FindByID retrieves a note document. Returns (nil, nil) when absent.
func (r *NoteRepository) FindByID(ctx context.Context, id string) (*note.Note, error) {
	var n note.Note
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var err error
		found, err = readJSON(tx, noteKey(id), &n)
		return err
	}, false)
	if err != nil {
		return nil, fmt.Errorf("finding note: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &n, nil
}

// FindAll lists notes newest-created first.
func (r *NoteRepository) FindAll(ctx context.Context, limit, offset int) ([]note.Note, error) {
	notes, err := r.allNotes()
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	sortNotesByCreatedDesc(notes)
	return pageNotes(notes, limit, offset), nil
}

func (r *NoteRepository) allNotes() ([]note.Note, error) {
	var notes []note.Note
	err := r.store.WithTx(func(tx *badger.Txn) error {
		return iteratePrefix(tx, []byte(notePrefix+":"), func(key, val []byte) error {
			var n note.Note
			if err := unmarshalDoc(val, &n); err != nil {
				return err
			}
			notes = append(notes, n)
			return nil
		})
	}, false)
	return notes, err
}

// Update merges the partial update into the stored document. Existing
// annotations are untouched. Returns (nil, nil) when the note is absent.
func (r *NoteRepository) Update(ctx context.Context, id string, upd note.Update) (*note.Note, error) {
	var merged note.Note
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		ok, err := readJSON(tx, noteKey(id), &merged)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		upd.Apply(&merged)
		merged.UpdatedAt = time.Now().UTC()
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("%w: %v", repository.ErrInvalid, err)
		}
		if err := writeJSON(tx, noteKey(id), &merged); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("updating note: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &merged, nil
}

// Delete removes the note document. Returns false when absent.
func (r *NoteRepository) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		ok, err := keyExists(tx, noteKey(id))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true
		if err := tx.Delete(noteKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return false, fmt.Errorf("deleting note: %w", err)
	}
	return found, nil
}

// Count returns the total number of notes.
func (r *NoteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var err error
		count, err = countPrefix(tx, []byte(notePrefix+":"))
		return err
	}, false)
	if err != nil {
		return 0, fmt.Errorf("counting notes: %w", err)
	}
	return count, nil
}

// FindByPaperID returns the notes attached to a paper.
func (r *NoteRepository) FindByPaperID(ctx context.Context, paperID string) ([]note.Note, error) {
	return r.filtered("finding notes by paper", func(n *note.Note) bool {
		return n.PaperID == paperID
	})
}

// FindByTag returns notes with a tag containing the given substring,
// case-insensitively.
func (r *NoteRepository) FindByTag(ctx context.Context, tag string) ([]note.Note, error) {
	q := strings.ToLower(tag)
	return r.filtered("finding notes by tag", func(n *note.Note) bool {
		for _, t := range n.Tags {
			if strings.Contains(strings.ToLower(t), q) {
				return true
			}
		}
		return false
	})
}

// FindByContent returns notes whose content contains the given
// substring, case-insensitively.
func (r *NoteRepository) FindByContent(ctx context.Context, query string) ([]note.Note, error) {
	q := strings.ToLower(query)
	return r.filtered("finding notes by content", func(n *note.Note) bool {
		return strings.Contains(strings.ToLower(n.Content), q)
	})
}

func (r *NoteRepository) filtered(op string, keep func(*note.Note) bool) ([]note.Note, error) {
	notes, err := r.allNotes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out []note.Note
	for _, n := range notes {
		if keep(&n) {
			out = append(out, n)
		}
	}
	sortNotesByCreatedDesc(out)
	return out, nil
}

// AddAnnotation appends an annotation to the note and returns the
// updated note.
func (r *NoteRepository) AddAnnotation(ctx context.Context, noteID string, a note.Annotation) (*note.Note, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}
	return r.rewriteNote(ctx, "adding annotation", noteID, func(n *note.Note) error {
		a.ID = uuid.NewString()
		n.Annotations = append(n.Annotations, a)
		return nil
	})
}

// UpdateAnnotation merges the partial update into one annotation of the
// note and returns the updated note.
func (r *NoteRepository) UpdateAnnotation(ctx context.Context, noteID, annotationID string, upd note.AnnotationUpdate) (*note.Note, error) {
	return r.rewriteNote(ctx, "updating annotation", noteID, func(n *note.Note) error {
		for i := range n.Annotations {
			if n.Annotations[i].ID == annotationID {
				upd.Apply(&n.Annotations[i])
				if err := n.Annotations[i].Validate(); err != nil {
					return fmt.Errorf("%w: %v", repository.ErrInvalid, err)
				}
				return nil
			}
		}
		return fmt.Errorf("annotation %s: %w", annotationID, repository.ErrNotFound)
	})
}

// RemoveAnnotation deletes one annotation from the note and returns the
// updated note.
func (r *NoteRepository) RemoveAnnotation(ctx context.Context, noteID, annotationID string) (*note.Note, error) {
	return r.rewriteNote(ctx, "removing annotation", noteID, func(n *note.Note) error {
		for i := range n.Annotations {
			if n.Annotations[i].ID == annotationID {
				n.Annotations = append(n.Annotations[:i], n.Annotations[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("annotation %s: %w", annotationID, repository.ErrNotFound)
	})
}

func (r *NoteRepository) rewriteNote(ctx context.Context, op, noteID string, mutate func(*note.Note) error) (*note.Note, error) {
	var n note.Note
	err := r.store.WithTx(func(tx *badger.Txn) error {
		ok, err := readJSON(tx, noteKey(noteID), &n)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("note %s: %w", noteID, repository.ErrNotFound)
		}
		if err := mutate(&n); err != nil {
			return err
		}
		n.UpdatedAt = time.Now().UTC()
		if err := writeJSON(tx, noteKey(noteID), &n); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &n, nil
}

func sortNotesByCreatedDesc(notes []note.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
}

func pageNotes(notes []note.Note, limit, offset int) []note.Note {
	if offset >= len(notes) {
		return nil
	}
	notes = notes[offset:]
	if limit > 0 && limit < len(notes) {
		notes = notes[:limit]
	}
	return notes
}
