// Package search ranks segments for retrieval: cosine similarity over
// stored embedding vectors, and a bleve keyword index over segment
// text for exact-term lookups.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/embedding"
)

// Match is one scored segment from a similarity query.
type Match struct {
	SegmentID int64   `json:"segment_id"`
	Score     float64 `json:"score"`
}

// Semantic runs cosine-similarity queries against embeddings already
// in the catalog. It never calls the Analysis Service; callers embed
// the query text first.
type Semantic struct {
	repo catalog.Repository
}

func NewSemantic(repo catalog.Repository) *Semantic {
	return &Semantic{repo: repo}
}

// Search scores every stored embedding of the given kind/model in the
// project against queryVec and returns the top limit matches, best
// first. Vectors of different lengths are compared over their shared
// prefix, so a 384-d text query can rank 384-d fusion vectors and
// vice versa. Equal scores order by ascending segment id.
func (s *Semantic) Search(ctx context.Context, projectID int64, queryVec []float32, embType, model string, filter catalog.AssetFilter, limit int) ([]Match, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	embs, err := s.repo.ListEmbeddings(ctx, projectID, embType, model, filter)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	matches := make([]Match, 0, len(embs))
	for _, e := range embs {
		if len(e.Vector) == 0 {
			continue
		}
		q, v := queryVec, e.Vector
		if len(q) != len(v) {
			n := min(len(q), len(v))
			q, v = q[:n], v[:n]
		}
		matches = append(matches, Match{
			SegmentID: e.SegmentID,
			Score:     embedding.CosineSimilarity(q, v),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].SegmentID < matches[j].SegmentID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// SearchFusionFirst prefers fusion vectors and falls back to the text
// model when the project has no fusion embeddings yet.
func (s *Semantic) SearchFusionFirst(ctx context.Context, projectID int64, queryVec []float32, filter catalog.AssetFilter, limit int) ([]Match, string, error) {
	matches, err := s.Search(ctx, projectID, queryVec, embedding.TypeFusion, embedding.FusionModel, filter, limit)
	if err == nil && len(matches) > 0 {
		return matches, embedding.FusionModel, nil
	}

	matches, err = s.Search(ctx, projectID, queryVec, embedding.TypeText, embedding.TextModel, filter, limit)
	if err != nil {
		return nil, "", err
	}
	return matches, embedding.TextModel, nil
}
