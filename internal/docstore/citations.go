package docstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/papervault/papervault/internal/paper"
	"github.com/papervault/papervault/internal/repository"
)

// GetCitations returns the outgoing citations of a paper.
func (r *PaperRepository) GetCitations(ctx context.Context, paperID string) ([]paper.Citation, error) {
	var citations []paper.Citation
	err := r.store.WithTx(func(tx *badger.Txn) error {
		return iteratePrefix(tx, citationSourceScanPrefix(paperID), func(key, val []byte) error {
			var c paper.Citation
			if err := unmarshalDoc(val, &c); err != nil {
				return err
			}
			citations = append(citations, c)
			return nil
		})
	}, false)
	if err != nil {
		return nil, fmt.Errorf("loading citations: %w", err)
	}
	sort.Slice(citations, func(i, j int) bool {
		return citations[i].TargetID < citations[j].TargetID
	})
	return citations, nil
}

// GetCitedBy returns the incoming citations of a paper, resolved
// through the reverse index.
func (r *PaperRepository) GetCitedBy(ctx context.Context, paperID string) ([]paper.Citation, error) {
	var citations []paper.Citation
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var sources []string
		if err := iteratePrefix(tx, citationReverseScanPrefix(paperID), func(key, val []byte) error {
			sources = append(sources, string(val))
			return nil
		}); err != nil {
			return err
		}
		for _, source := range sources {
			var c paper.Citation
			ok, err := readJSON(tx, citationKey(source, paperID), &c)
			if err != nil {
				return err
			}
			if ok {
				citations = append(citations, c)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, fmt.Errorf("loading citing papers: %w", err)
	}
	sort.Slice(citations, func(i, j int) bool {
		return citations[i].SourceID < citations[j].SourceID
	})
	return citations, nil
}

// AddCitation records that the source paper cites the target paper.
// Both papers must exist; the ordered pair must not already be cited.
// The source document's cited-id set is updated in the same transaction.
func (r *PaperRepository) AddCitation(ctx context.Context, c *paper.Citation) (*paper.Citation, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalid, err)
	}

	created := *c
	created.ID = uuid.NewString()
	created.CreatedAt = time.Now().UTC()

	err := r.store.WithTx(func(tx *badger.Txn) error {
		var source paper.Paper
		ok, err := readJSON(tx, paperKey(created.SourceID), &source)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("paper %s: %w", created.SourceID, repository.ErrNotFound)
		}
		targetExists, err := keyExists(tx, paperKey(created.TargetID))
		if err != nil {
			return err
		}
		if !targetExists {
			return fmt.Errorf("paper %s: %w", created.TargetID, repository.ErrNotFound)
		}

		pairExists, err := keyExists(tx, citationKey(created.SourceID, created.TargetID))
		if err != nil {
			return err
		}
		if pairExists {
			return repository.ErrDuplicate
		}

		if err := writeJSON(tx, citationKey(created.SourceID, created.TargetID), &created); err != nil {
			return err
		}
		if err := tx.Set(citationReverseKey(created.TargetID, created.SourceID), []byte(created.SourceID)); err != nil {
			return err
		}

		source.CitedPaperIDs = append(source.CitedPaperIDs, created.TargetID)
		sort.Strings(source.CitedPaperIDs)
		if err := writeJSON(tx, paperKey(created.SourceID), &source); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("adding citation: %w", err)
	}
	return &created, nil
}

// RemoveCitation deletes the citation for the ordered (source, target)
// pair. Returns false when no such citation exists.
func (r *PaperRepository) RemoveCitation(ctx context.Context, sourceID, targetID string) (bool, error) {
	var found bool
	err := r.store.WithTx(func(tx *badger.Txn) error {
		ok, err := keyExists(tx, citationKey(sourceID, targetID))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		if err := tx.Delete(citationKey(sourceID, targetID)); err != nil {
			return err
		}
		if err := tx.Delete(citationReverseKey(targetID, sourceID)); err != nil {
			return err
		}

		var source paper.Paper
		ok, err = readJSON(tx, paperKey(sourceID), &source)
		if err != nil {
			return err
		}
		if ok {
			source.CitedPaperIDs = removeString(source.CitedPaperIDs, targetID)
			if err := writeJSON(tx, paperKey(sourceID), &source); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return false, fmt.Errorf("removing citation: %w", err)
	}
	return found, nil
}

// GetCitationCount returns how many papers cite the given paper.
func (r *PaperRepository) GetCitationCount(ctx context.Context, paperID string) (int, error) {
	var count int
	err := r.store.WithTx(func(tx *badger.Txn) error {
		var err error
		count, err = countPrefix(tx, citationReverseScanPrefix(paperID))
		return err
	}, false)
	if err != nil {
		return 0, fmt.Errorf("counting citations: %w", err)
	}
	return count, nil
}

// GetCitationNetwork walks the citation graph breadth-first to the
// requested depth in both directions.
func (r *PaperRepository) GetCitationNetwork(ctx context.Context, paperID string, depth int) (*repository.CitationNetwork, error) {
	return repository.BuildCitationNetwork(ctx, r, paperID, depth)
}
