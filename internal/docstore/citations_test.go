package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/repository"
)

func createPapers(t *testing.T, repo *PaperRepository, titles ...string) []string {
	t.Helper()

	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		p, err := repo.Create(context.Background(), samplePaper(title, ""))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}

func TestPaperRepository_AddCitation(t *testing.T) {
	repo := NewPaperRepository(testStore(t))
	ctx := context.Background()
	ids := createPapers(t, repo, "Source", "Target")

	created, err := repo.AddCitation(ctx, &paper.Citation{
		SourceID: ids[0], TargetID: ids[1], Type: paper.CitationDirect, Context: "builds on",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	citations, err := repo.GetCitations(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, citations, 1)
	assert.Equal(t, ids[1], citations[0].TargetID)
	assert.Equal(t, "builds on", citations[0].Context)

	// Directionality
	reverse, err := repo.GetCitations(ctx, ids[1])
	require.NoError(t, err)
	assert.Empty(t, reverse)

	citedBy, err := repo.GetCitedBy(ctx, ids[1])
	require.NoError(t, err)
	require.Len(t, citedBy, 1)
	assert.Equal(t, ids[0], citedBy[0].SourceID)

	// The source document carries the target id
	source, err := repo.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, source.CitedPaperIDs)
}

func TestPaperRepository_AddCitationConstraints(t *testing.T) {
	repo := NewPaperRepository(testStore(t))
	ctx := context.Background()
	ids := createPapers(t, repo, "Source", "Target")

	_, err := repo.AddCitation(ctx, &paper.Citation{SourceID: ids[0], TargetID: ids[1], Type: paper.CitationDirect})
	require.NoError(t, err)

	// Duplicate ordered pair
	_, err = repo.AddCitation(ctx, &paper.Citation{SourceID: ids[0], TargetID: ids[1], Type: paper.CitationCritical})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	// Opposite direction is distinct
	_, err = repo.AddCitation(ctx, &paper.Citation{SourceID: ids[1], TargetID: ids[0], Type: paper.CitationDirect})
	require.NoError(t, err)

	// Self citation
	_, err = repo.AddCitation(ctx, &paper.Citation{SourceID: ids[0], TargetID: ids[0], Type: paper.CitationDirect})
	assert.ErrorIs(t, err, repository.ErrInvalid)

	// Missing paper
	_, err = repo.AddCitation(ctx, &paper.Citation{SourceID: ids[0], TargetID: "no-such-id", Type: paper.CitationDirect})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPaperRepository_RemoveCitation(t *testing.T) {
	repo := NewPaperRepository(testStore(t))
	ctx := context.Background()
	ids := createPapers(t, repo, "Source", "Target")

	_, err := repo.AddCitation(ctx, &paper.Citation{SourceID: ids[0], TargetID: ids[1], Type: paper.CitationDirect})
	require.NoError(t, err)

	removed, err := repo.RemoveCitation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	require.True(t, removed)

	source, err := repo.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, source.CitedPaperIDs)

	citedBy, err := repo.GetCitedBy(ctx, ids[1])
	require.NoError(t, err)
	assert.Empty(t, citedBy)

	removed, err = repo.RemoveCitation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPaperRepository_CitationCountAndNetwork(t *testing.T) {
	repo := NewPaperRepository(testStore(t))
	ctx := context.Background()

	// A -> B -> C, D -> B
	ids := createPapers(t, repo, "A", "B", "C", "D")
	for _, pair := range [][2]int{{0, 1}, {1, 2}, {3, 1}} {
		_, err := repo.AddCitation(ctx, &paper.Citation{
			SourceID: ids[pair[0]], TargetID: ids[pair[1]], Type: paper.CitationDirect,
		})
		require.NoError(t, err)
	}

	n, err := repo.GetCitationCount(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	network, err := repo.GetCitationNetwork(ctx, ids[0], 1)
	require.NoError(t, err)
	assert.Len(t, network.Papers, 2)
	assert.Len(t, network.Citations, 1)

	network, err = repo.GetCitationNetwork(ctx, ids[0], 2)
	require.NoError(t, err)
	assert.Len(t, network.Papers, 4)
	assert.Len(t, network.Citations, 3)

	_, err = repo.GetCitationNetwork(ctx, "no-such-id", 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
