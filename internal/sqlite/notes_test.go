package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/papervault/papervault/internal/note"
	"github.com/papervault/papervault/internal/repository"
)

func sampleNote(paperID, content string) *note.Note {
	return &note.Note{
		PaperID: paperID,
		Content: content,
		Tags:    []string{"methods", "to-read"},
		Annotations: []note.Annotation{
			{Type: note.AnnotationHighlight, Page: 2, X: 10, Y: 20, Text: "key claim"},
			{Type: note.AnnotationComment, Page: 3, X: 5, Y: 8, Text: "check the proof"},
		},
	}
}

func TestNoteRepository_CreateAndFindByID(t *testing.T) {
	repo := NewNoteRepository(testDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleNote("", "Standalone thoughts on sampling."))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create() did not assign an id")
	}
	if len(created.Annotations) != 2 || created.Annotations[0].ID == "" {
		t.Fatalf("Create() did not assign annotation ids: %v", created.Annotations)
	}

	found, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found == nil {
		t.Fatal("FindByID() returned nil for existing note")
	}
	if found.Content != "Standalone thoughts on sampling." {
		t.Errorf("Content = %q", found.Content)
	}
	if found.PaperID != "" {
		t.Errorf("PaperID = %q, want empty for standalone note", found.PaperID)
	}
	if len(found.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", found.Tags)
	}
	if len(found.Annotations) != 2 {
		t.Fatalf("len(Annotations) = %d, want 2", len(found.Annotations))
	}
	if found.Annotations[0].Text != "key claim" || found.Annotations[1].Text != "check the proof" {
		t.Errorf("annotation order not preserved: %v", found.Annotations)
	}
}

func TestNoteRepository_CreateInvalid(t *testing.T) {
	repo := NewNoteRepository(testDB(t))

	_, err := repo.Create(context.Background(), &note.Note{Content: ""})
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("Create() with empty content error = %v, want ErrInvalid", err)
	}

	_, err = repo.Create(context.Background(), &note.Note{
		Content:     "ok",
		Annotations: []note.Annotation{{Type: "underline"}},
	})
	if !errors.Is(err, repository.ErrInvalid) {
		t.Fatalf("Create() with unknown annotation type error = %v, want ErrInvalid", err)
	}
}

func TestNoteRepository_Update(t *testing.T) {
	repo := NewNoteRepository(testDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleNote("", "Original content."))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	content := "Revised content."
	tags := []string{"revised"}
	updated, err := repo.Update(ctx, created.ID, note.Update{Content: &content, Tags: &tags})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Content != content {
		t.Errorf("Content = %q, want %q", updated.Content, content)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "revised" {
		t.Errorf("Tags = %v, want [revised]", updated.Tags)
	}
	if len(updated.Annotations) != 2 {
		t.Errorf("Update() touched annotations: %v", updated.Annotations)
	}

	missing, err := repo.Update(ctx, "no-such-id", note.Update{Content: &content})
	if err != nil {
		t.Fatalf("Update() missing error = %v", err)
	}
	if missing != nil {
		t.Fatalf("Update() = %v, want nil for unknown id", missing)
	}
}

func TestNoteRepository_Delete(t *testing.T) {
	repo := NewNoteRepository(testDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, sampleNote("", "Disposable."))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deleted, err := repo.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Fatal("Delete() = false for existing note")
	}

	deleted, err = repo.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Delete() second call error = %v", err)
	}
	if deleted {
		t.Fatal("Delete() = true for already-deleted note")
	}
}

func TestNoteRepository_Filters(t *testing.T) {
	db := testDB(t)
	papers := NewPaperRepository(db)
	repo := NewNoteRepository(db)
	ctx := context.Background()

	p, err := papers.Create(ctx, samplePaper("Attached Paper", ""))
	if err != nil {
		t.Fatalf("Create() paper error = %v", err)
	}

	if _, err := repo.Create(ctx, sampleNote(p.ID, "Attached to the paper.")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	standalone := sampleNote("", "Standalone about proteins.")
	standalone.Tags = []string{"proteins"}
	if _, err := repo.Create(ctx, standalone); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	byPaper, err := repo.FindByPaperID(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindByPaperID() error = %v", err)
	}
	if len(byPaper) != 1 || byPaper[0].Content != "Attached to the paper." {
		t.Fatalf("FindByPaperID() = %v, want the attached note", byPaper)
	}
	if len(byPaper[0].Annotations) != 2 {
		t.Errorf("list results missing annotations: %v", byPaper[0].Annotations)
	}

	byTag, err := repo.FindByTag(ctx, "proteins")
	if err != nil {
		t.Fatalf("FindByTag() error = %v", err)
	}
	if len(byTag) != 1 {
		t.Fatalf("FindByTag(proteins) = %d notes, want 1", len(byTag))
	}

	byContent, err := repo.FindByContent(ctx, "standalone")
	if err != nil {
		t.Fatalf("FindByContent() error = %v", err)
	}
	if len(byContent) != 1 {
		t.Fatalf("FindByContent(standalone) = %d notes, want 1", len(byContent))
	}
}

func TestNoteRepository_Annotations(t *testing.T) {
	repo := NewNoteRepository(testDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, &note.Note{Content: "Annotation target."})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	n, err := repo.AddAnnotation(ctx, created.ID, note.Annotation{
		Type: note.AnnotationBookmark, Page: 1,
	})
	if err != nil {
		t.Fatalf("AddAnnotation() error = %v", err)
	}
	if len(n.Annotations) != 1 {
		t.Fatalf("len(Annotations) = %d, want 1", len(n.Annotations))
	}
	first := n.Annotations[0]

	n, err = repo.AddAnnotation(ctx, created.ID, note.Annotation{
		Type: note.AnnotationHighlight, Page: 2, Text: "second",
	})
	if err != nil {
		t.Fatalf("AddAnnotation() error = %v", err)
	}
	if len(n.Annotations) != 2 {
		t.Fatalf("len(Annotations) = %d, want 2", len(n.Annotations))
	}
	if n.Annotations[0].ID != first.ID {
		t.Error("appending changed the first annotation's position")
	}

	// Update one annotation, siblings untouched
	text := "revised text"
	n, err = repo.UpdateAnnotation(ctx, created.ID, first.ID, note.AnnotationUpdate{Text: &text})
	if err != nil {
		t.Fatalf("UpdateAnnotation() error = %v", err)
	}
	if n.Annotations[0].Text != text {
		t.Errorf("annotation Text = %q, want %q", n.Annotations[0].Text, text)
	}
	if n.Annotations[0].Type != note.AnnotationBookmark {
		t.Errorf("unset fields changed: Type = %q", n.Annotations[0].Type)
	}
	if n.Annotations[1].Text != "second" {
		t.Errorf("sibling annotation changed: %v", n.Annotations[1])
	}

	// Remove one, the other survives
	n, err = repo.RemoveAnnotation(ctx, created.ID, first.ID)
	if err != nil {
		t.Fatalf("RemoveAnnotation() error = %v", err)
	}
	if len(n.Annotations) != 1 || n.Annotations[0].Text != "second" {
		t.Fatalf("Annotations after remove = %v, want only the second", n.Annotations)
	}

	// Missing note / annotation
	_, err = repo.AddAnnotation(ctx, "no-such-note", note.Annotation{Type: note.AnnotationComment})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("AddAnnotation() on missing note error = %v, want ErrNotFound", err)
	}
	_, err = repo.RemoveAnnotation(ctx, created.ID, "no-such-annotation")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("RemoveAnnotation() on missing annotation error = %v, want ErrNotFound", err)
	}
}
