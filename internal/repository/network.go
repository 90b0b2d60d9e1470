package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/papervault/papervault/internal/paper"
)

// CitationNetwork is the neighborhood of a paper in the citation graph:
// every paper reachable within Depth hops in either direction, plus the
// citation edges between visited papers.
type CitationNetwork struct {
	CenterID  string           `json:"center_id"`
	Depth     int              `json:"depth"`
	Papers    []paper.Paper    `json:"papers"`
	Citations []paper.Citation `json:"citations"`
}

// BuildCitationNetwork walks the citation graph breadth-first to the
// requested depth, following citations in both directions. Both engine
// variants delegate to it. Each level's newly discovered paper-id set is
// deduplicated before any rows are fetched; discovered papers are
// visited in sorted id order so results are deterministic.
func BuildCitationNetwork(ctx context.Context, repo PaperRepository, paperID string, depth int) (*CitationNetwork, error) {
	center, err := repo.FindByID(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if center == nil {
		return nil, fmt.Errorf("building citation network: %w", ErrNotFound)
	}
	if depth < 1 {
		depth = 1
	}

	visited := map[string]bool{paperID: true}
	seenEdges := map[string]bool{}
	frontier := []string{paperID}

	network := &CitationNetwork{
		CenterID: paperID,
		Depth:    depth,
		Papers:   []paper.Paper{*center},
	}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		discovered := map[string]bool{}

		for _, id := range frontier {
			outgoing, err := repo.GetCitations(ctx, id)
			if err != nil {
				return nil, err
			}
			incoming, err := repo.GetCitedBy(ctx, id)
			if err != nil {
				return nil, err
			}

			for _, c := range append(outgoing, incoming...) {
				key := c.SourceID + "\x00" + c.TargetID
				if !seenEdges[key] {
					seenEdges[key] = true
					network.Citations = append(network.Citations, c)
				}
				if !visited[c.SourceID] {
					discovered[c.SourceID] = true
				}
				if !visited[c.TargetID] {
					discovered[c.TargetID] = true
				}
			}
		}

		next := make([]string, 0, len(discovered))
		for id := range discovered {
			next = append(next, id)
		}
		sort.Strings(next)

		frontier = frontier[:0]
		for _, id := range next {
			visited[id] = true
			p, err := repo.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if p == nil {
				continue // edge to a paper deleted mid-walk
			}
			network.Papers = append(network.Papers, *p)
			frontier = append(frontier, id)
		}
	}

	return network, nil
}
