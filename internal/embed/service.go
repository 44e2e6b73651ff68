// Package embed attaches similarity vectors to chunks that lack one.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"avatar/backend/internal/apperr"
	"avatar/backend/internal/text"
)

// Chunk is the slice of a content_chunks row the embedding stage needs.
type Chunk struct {
	ID         string
	SourceID   string
	ChunkIndex int
	Content    string
	Domain     string
}

// ChunkVector is a chunk with its embedding, ready for the vector store.
type ChunkVector struct {
	ChunkID    string
	SourceID   string
	ChunkIndex int
	Content    string
	Domain     string
	TokenCount int
	Vector     []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	StoreChunk(ctx context.Context, v ChunkVector) error
}

type ChunkRepo interface {
	// GetPendingChunks returns only chunks without an embedding, in
	// chunk_index order.
	GetPendingChunks(ctx context.Context, sourceID string) ([]Chunk, error)
	MarkEmbedded(ctx context.Context, chunkID string, tokenCount int) error
}

type ProcessLogger interface {
	Append(ctx context.Context, sourceID, stage, status, message string, durationMs int64) error
}

const (
	rateLimitAttempts = 3
	initialBackoff    = 500 * time.Millisecond
)

type Service struct {
	repo       ChunkRepo
	embedder   Embedder
	store      VectorStore
	logs       ProcessLogger
	batchSize  int
	batchDelay time.Duration
	timeout    time.Duration
}

func NewService(repo ChunkRepo, e Embedder, s VectorStore, logs ProcessLogger, batchSize int, batchDelay, timeout time.Duration) *Service {
	if batchSize <= 0 {
		batchSize = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{repo: repo, embedder: e, store: s, logs: logs, batchSize: batchSize, batchDelay: batchDelay, timeout: timeout}
}

// EmbedSource embeds every pending chunk of a source in batches, pausing
// between batches to stay under provider rate limits. One chunk failing never
// aborts the rest; a fully-embedded source makes zero provider calls.
func (s *Service) EmbedSource(ctx context.Context, sourceID string) (succeeded, failed int, err error) {
	start := time.Now()

	chunks, err := s.repo.GetPendingChunks(ctx, sourceID)
	if err != nil {
		return 0, 0, err
	}
	if len(chunks) == 0 {
		slog.InfoContext(ctx, "no pending chunks, nothing to embed", "source_id", sourceID)
		return 0, 0, nil
	}

	s.logAppend(ctx, sourceID, "started", fmt.Sprintf("embedding %d chunks", len(chunks)), 0)

	for i := 0; i < len(chunks); i += s.batchSize {
		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		for _, ch := range chunks[i:end] {
			if err := s.embedChunk(ctx, ch); err != nil {
				failed++
				slog.ErrorContext(ctx, "chunk embedding failed", "error", err, "source_id", sourceID, "chunk_index", ch.ChunkIndex)
				s.logAppend(ctx, sourceID, "failed", fmt.Sprintf("chunk %d: %v", ch.ChunkIndex, err), 0)
				continue
			}
			succeeded++
		}

		if end < len(chunks) && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return succeeded, failed, ctx.Err()
			case <-time.After(s.batchDelay):
			}
		}
	}

	s.logAppend(ctx, sourceID, "completed",
		fmt.Sprintf("embedded %d chunks, %d failed", succeeded, failed),
		time.Since(start).Milliseconds())

	slog.InfoContext(ctx, "embedding run finished", "source_id", sourceID, "succeeded", succeeded, "failed", failed)
	return succeeded, failed, nil
}

func (s *Service) embedChunk(ctx context.Context, ch Chunk) error {
	var vec []float32
	var err error

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		ectx, cancel := context.WithTimeout(ctx, s.timeout)
		vec, err = s.embedder.Embed(ectx, ch.Content)
		cancel()
		if err == nil {
			break
		}
		if !apperr.Retryable(err) || attempt >= rateLimitAttempts {
			return err
		}
		slog.WarnContext(ctx, "rate limited, backing off", "attempt", attempt, "backoff", backoff, "chunk_index", ch.ChunkIndex)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	tokenCount := text.EstimateTokens(ch.Content)

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.StoreChunk(sctx, ChunkVector{
		ChunkID:    ch.ID,
		SourceID:   ch.SourceID,
		ChunkIndex: ch.ChunkIndex,
		Content:    ch.Content,
		Domain:     ch.Domain,
		TokenCount: tokenCount,
		Vector:     vec,
	}); err != nil {
		return err
	}

	return s.repo.MarkEmbedded(ctx, ch.ID, tokenCount)
}

func (s *Service) logAppend(ctx context.Context, sourceID, status, message string, durationMs int64) {
	if s.logs == nil {
		return
	}
	if err := s.logs.Append(ctx, sourceID, "embed", status, message, durationMs); err != nil {
		slog.WarnContext(ctx, "failed to append processing log", "error", err, "source_id", sourceID)
	}
}
