package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/repository"
)

const selectNoteFields = `id, paper_id, content, tags_json, created_at, updated_at`

// NoteRepository implements repository.NoteRepository on SQLite.
// Annotations live in their own table, ordered by a position column,
// and cascade-delete with their note.
type NoteRepository struct {
	db *DB
}

var _ repository.NoteRepository = (*NoteRepository)(nil)

// NewNoteRepository creates a note repository bound to db.
func NewNoteRepository(db *DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// Create inserts a note and its annotations in one transaction.
func (r *NoteRepository) Create(ctx context.Context, n *note.Note) (*note.Note, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	now := time.Now().UTC()
	created := *n
	created.ID = uuid.NewString()
	created.CreatedAt = now
	created.UpdatedAt = now

	tagsJSON, err := marshalJSON(created.Tags)
	if err != nil {
		return nil, fmt.Errorf("encoding tags: %w", err)
	}

	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, paper_id, content, tags_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, created.ID, nullableStringValue(created.PaperID), created.Content,
		tagsJSON, timeToNano(created.CreatedAt), timeToNano(created.UpdatedAt))
	if err != nil {
		return nil, translateErr("creating note", err)
	}

	annotations := make([]note.Annotation, 0, len(created.Annotations))
	for i, a := range created.Annotations {
		a.ID = uuid.NewString()
		if err := insertAnnotation(ctx, tx, created.ID, i, a); err != nil {
			return nil, translateErr("creating annotations", err)
		}
		annotations = append(annotations, a)
	}
	created.Annotations = annotations

	if err := tx.Commit(); err != nil {
		return nil, translateErr("creating note", err)
	}
	return &created, nil
}

func insertAnnotation(ctx context.Context, tx *sql.Tx, noteID string, position int, a note.Annotation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO annotations (id, note_id, position, annotation_type, page, x, y, width, height, text, color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, noteID, position, string(a.Type), a.Page, a.X, a.Y, a.Width, a.Height,
		nullableStringValue(a.Text), nullableStringValue(a.Color))
	return err
}

// FindByID retrieves a note with its ordered annotations. Returns
// (nil, nil) when absent.
func (r *NoteRepository) FindByID(ctx context.Context, id string) (*note.Note, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+selectNoteFields+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		return nil, translateErr("finding note", err)
	}
	if n == nil {
		return nil, nil
	}
	n.Annotations, err = r.annotationsFor(ctx, n.ID)
	if err != nil {
		return nil, translateErr("loading annotations", err)
	}
	return n, nil
}

func (r *NoteRepository) annotationsFor(ctx context.Context, noteID string) ([]note.Annotation, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT id, annotation_type, page, x, y, width, height, text, color
		FROM annotations WHERE note_id = ? ORDER BY position
	`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var annotations []note.Annotation
	for rows.Next() {
		var a note.Annotation
		var annotationType string
		var text, color sql.NullString
		if err := rows.Scan(&a.ID, &annotationType, &a.Page, &a.X, &a.Y, &a.Width, &a.Height, &text, &color); err != nil {
			return nil, err
		}
		a.Type = note.AnnotationType(annotationType)
		a.Text = text.String
		a.Color = color.String
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}

// FindAll lists notes newest-created first, with annotations.
func (r *NoteRepository) FindAll(ctx context.Context, limit, offset int) ([]note.Note, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryNotes(ctx, "listing notes", `
		SELECT `+selectNoteFields+` FROM notes
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?
	`, limit, offset)
}

// Update merges the partial update into the stored note. Annotations
// are not touched here; use the annotation operations. Returns
// (nil, nil) when the note does not exist.
func (r *NoteRepository) Update(ctx context.Context, id string, upd note.Update) (*note.Note, error) {
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
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

	tagsJSON, err := marshalJSON(merged.Tags)
	if err != nil {
		return nil, fmt.Errorf("encoding tags: %w", err)
	}

	_, err = r.db.db.ExecContext(ctx, `
		UPDATE notes SET paper_id = ?, content = ?, tags_json = ?, updated_at = ?
		WHERE id = ?
	`, nullableStringValue(merged.PaperID), merged.Content, tagsJSON,
		timeToNano(merged.UpdatedAt), id)
	if err != nil {
		return nil, translateErr("updating note", err)
	}
	return &merged, nil
}

// Delete removes a note and, through the schema, its annotations.
// Returns false when the note does not exist.
func (r *NoteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return false, translateErr("deleting note", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translateErr("deleting note", err)
	}
	return n > 0, nil
}

// Count returns the total number of notes.
func (r *NoteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count)
	if err != nil {
		return 0, translateErr("counting notes", err)
	}
	return count, nil
}

// FindByPaperID returns the notes attached to a paper.
func (r *NoteRepository) FindByPaperID(ctx context.Context, paperID string) ([]note.Note, error) {
	return r.queryNotes(ctx, "finding notes by paper", `
		SELECT `+selectNoteFields+` FROM notes
		WHERE paper_id = ? ORDER BY created_at DESC, id
	`, paperID)
}

// FindByTag returns notes with a tag containing the given substring.
func (r *NoteRepository) FindByTag(ctx context.Context, tag string) ([]note.Note, error) {
	return r.queryNotes(ctx, "finding notes by tag", `
		SELECT `+selectNoteFields+` FROM notes
		WHERE tags_json LIKE ? ORDER BY created_at DESC, id
	`, "%"+tag+"%")
}

// FindByContent returns notes whose content contains the given text.
func (r *NoteRepository) FindByContent(ctx context.Context, text string) ([]note.Note, error) {
	return r.queryNotes(ctx, "finding notes by content", `
		SELECT `+selectNoteFields+` FROM notes
		WHERE content LIKE ? ORDER BY created_at DESC, id
	`, "%"+text+"%")
}

// AddAnnotation appends an annotation to a note and returns the whole
// updated note. Fails with ErrNotFound when the note does not exist.
func (r *NoteRepository) AddAnnotation(ctx context.Context, noteID string, a note.Annotation) (*note.Note, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("adding annotation: %w", err)
	}
	defer tx.Rollback()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, noteID).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("adding annotation: note %s: %w", noteID, repository.ErrNotFound)
		}
		return nil, translateErr("adding annotation", err)
	}

	var position int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM annotations WHERE note_id = ?`, noteID,
	).Scan(&position); err != nil {
		return nil, translateErr("adding annotation", err)
	}

	a.ID = uuid.NewString()
	if err := insertAnnotation(ctx, tx, noteID, position, a); err != nil {
		return nil, translateErr("adding annotation", err)
	}
	if err := r.touch(ctx, tx, noteID); err != nil {
		return nil, translateErr("adding annotation", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translateErr("adding annotation", err)
	}

	return r.FindByID(ctx, noteID)
}

// UpdateAnnotation merges the partial update into one annotation and
// returns the whole updated note. Fails with ErrNotFound when the note
// or the annotation does not exist.
func (r *NoteRepository) UpdateAnnotation(ctx context.Context, noteID, annotationID string, upd note.AnnotationUpdate) (*note.Note, error) {
	current, err := r.FindByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("updating annotation: note %s: %w", noteID, repository.ErrNotFound)
	}

	var target *note.Annotation
	for i := range current.Annotations {
		if current.Annotations[i].ID == annotationID {
			target = &current.Annotations[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("updating annotation: annotation %s: %w", annotationID, repository.ErrNotFound)
	}

	upd.Apply(target)
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("updating annotation: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE annotations SET annotation_type = ?, page = ?, x = ?, y = ?,
			width = ?, height = ?, text = ?, color = ?
		WHERE id = ? AND note_id = ?
	`, string(target.Type), target.Page, target.X, target.Y, target.Width, target.Height,
		nullableStringValue(target.Text), nullableStringValue(target.Color), annotationID, noteID)
	if err != nil {
		return nil, translateErr("updating annotation", err)
	}
	if err := r.touch(ctx, tx, noteID); err != nil {
		return nil, translateErr("updating annotation", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translateErr("updating annotation", err)
	}

	return r.FindByID(ctx, noteID)
}

// RemoveAnnotation deletes one annotation and returns the whole updated
// note. Fails with ErrNotFound when the note or the annotation does not
// exist. Sibling annotations keep their relative order.
func (r *NoteRepository) RemoveAnnotation(ctx context.Context, noteID, annotationID string) (*note.Note, error) {
	current, err := r.FindByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("removing annotation: note %s: %w", noteID, repository.ErrNotFound)
	}

	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("removing annotation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM annotations WHERE id = ? AND note_id = ?`, annotationID, noteID)
	if err != nil {
		return nil, translateErr("removing annotation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, translateErr("removing annotation", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("removing annotation: annotation %s: %w", annotationID, repository.ErrNotFound)
	}
	if err := r.touch(ctx, tx, noteID); err != nil {
		return nil, translateErr("removing annotation", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translateErr("removing annotation", err)
	}

	return r.FindByID(ctx, noteID)
}

// touch bumps a note's updated_at inside a transaction.
func (r *NoteRepository) touch(ctx context.Context, tx *sql.Tx, noteID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE notes SET updated_at = ? WHERE id = ?`,
		timeToNano(time.Now().UTC()), noteID)
	return err
}

func (r *NoteRepository) queryNotes(ctx context.Context, op, query string, args ...interface{}) ([]note.Note, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(op, err)
	}
	defer rows.Close()

	var notes []note.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, translateErr(op, err)
		}
		if n != nil {
			notes = append(notes, *n)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(op, err)
	}

	for i := range notes {
		notes[i].Annotations, err = r.annotationsFor(ctx, notes[i].ID)
		if err != nil {
			return nil, translateErr(op, err)
		}
	}
	return notes, nil
}

func scanNote(s scanner) (*note.Note, error) {
	var n note.Note
	var paperID, tagsJSON sql.NullString
	var createdAt, updatedAt int64

	err := s.Scan(&n.ID, &paperID, &n.Content, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	n.PaperID = paperID.String
	n.CreatedAt = nanoToTime(createdAt)
	n.UpdatedAt = nanoToTime(updatedAt)

	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &n.Tags); err != nil {
			return nil, fmt.Errorf("parsing tags JSON for %s: %w", n.ID, err)
		}
	}
	return &n, nil
}
