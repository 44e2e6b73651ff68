package retrieval

import (
	"context"
	"sort"
	"time"

	"avatar/backend/internal/apperr"
	"avatar/backend/internal/middleware"
)

// Match is one retrieved chunk with its similarity to the query, where
// similarity = 1 - cosine distance.
type Match struct {
	ChunkID    string  `json:"chunk_id"`
	SourceID   string  `json:"source_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Domain     string  `json:"domain"`
	Similarity float32 `json:"similarity"`
}

// SearchOptions override the configured defaults per call.
type SearchOptions struct {
	Threshold *float32
	Limit     *int
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	SearchNearVector(ctx context.Context, vector []float32, threshold float32, limit int) ([]Match, error)
}

type Service struct {
	embedder  Embedder
	store     VectorStore
	logger    *QueryLogger
	threshold float32
	limit     int
	timeout   time.Duration
}

func NewService(e Embedder, s VectorStore, l *QueryLogger, threshold float32, limit int, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{embedder: e, store: s, logger: l, threshold: threshold, limit: limit, timeout: timeout}
}

// Search embeds the query and returns up to limit chunks whose similarity
// exceeds the threshold, best first. No chunk clearing the threshold is a
// normal outcome and yields an empty slice, not an error.
func (s *Service) Search(ctx context.Context, query string, opts *SearchOptions) ([]Match, error) {
	start := time.Now()

	threshold := s.threshold
	limit := s.limit
	if opts != nil {
		if opts.Threshold != nil {
			threshold = *opts.Threshold
		}
		if opts.Limit != nil {
			limit = *opts.Limit
		}
	}

	ectx, cancel := context.WithTimeout(ctx, s.timeout)
	vec, err := s.embedder.Embed(ectx, query)
	cancel()
	if err != nil {
		return nil, apperr.Provider(err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	matches, err := s.store.SearchNearVector(sctx, vec, threshold, limit)
	cancel()
	if err != nil {
		return nil, apperr.Provider(err)
	}

	// The store already filters and ranks; re-check here so a permissive
	// backend can never leak below-threshold or surplus results.
	filtered := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Similarity > threshold {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         query,
			NumResults:    len(filtered),
			Threshold:     threshold,
			Limit:         limit,
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}

	return filtered, nil
}
