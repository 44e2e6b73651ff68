// Package ingest turns a source's raw content into persisted chunks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"avatar/backend/features/source"
	"avatar/backend/internal/text"
)

type ProcessLogger interface {
	Append(ctx context.Context, sourceID, stage, status, message string, durationMs int64) error
}

type Service struct {
	sources       *source.Service
	repo          source.Repository
	vectors       source.ChunkStore
	logs          ProcessLogger
	maxTokens     int
	overlapTokens int
}

func NewService(sources *source.Service, repo source.Repository, vectors source.ChunkStore, logs ProcessLogger, maxTokens, overlapTokens int) *Service {
	if maxTokens <= 0 {
		maxTokens = 700
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return &Service{sources: sources, repo: repo, vectors: vectors, logs: logs, maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// ProcessSource sanitizes and chunks the source's raw content, persists the
// chunks and moves the source to processed. Sanitization runs before chunking
// so redaction never splits across a chunk boundary.
func (s *Service) ProcessSource(ctx context.Context, sourceID string) (int, error) {
	start := time.Now()

	src, err := s.repo.Get(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	if err := s.sources.UpdateStatus(ctx, sourceID, source.StatusProcessing); err != nil {
		return 0, err
	}
	s.logAppend(ctx, sourceID, "started", fmt.Sprintf("chunking source %q", src.Name), 0)

	chunks, err := s.buildChunks(src)
	if err != nil {
		s.fail(ctx, sourceID, err)
		return 0, err
	}

	// Re-processing replaces any previous chunk set, vectors included.
	if err := s.vectors.DeleteBySource(ctx, sourceID); err != nil {
		s.fail(ctx, sourceID, err)
		return 0, err
	}
	if err := s.repo.DeleteChunksBySource(ctx, sourceID); err != nil {
		s.fail(ctx, sourceID, err)
		return 0, err
	}

	if _, err := s.repo.BulkCreateChunks(ctx, chunks); err != nil {
		s.fail(ctx, sourceID, err)
		return 0, err
	}

	if err := s.sources.UpdateStatus(ctx, sourceID, source.StatusProcessed); err != nil {
		return len(chunks), err
	}

	s.logAppend(ctx, sourceID, "completed",
		fmt.Sprintf("created %d chunks", len(chunks)),
		time.Since(start).Milliseconds())

	slog.InfoContext(ctx, "source processed", "source_id", sourceID, "chunks", len(chunks))
	return len(chunks), nil
}

func (s *Service) buildChunks(src *source.Source) ([]source.Chunk, error) {
	sanitized := text.Sanitize(src.RawContent)
	pieces := text.Chunk(sanitized, s.maxTokens, s.overlapTokens)

	chunks := make([]source.Chunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, source.Chunk{
			SourceID:   src.ID,
			ChunkIndex: i,
			Content:    content,
			TokenCount: text.EstimateTokens(content),
			Domain:     string(text.AssignDomain(content)),
		})
	}
	return chunks, nil
}

func (s *Service) fail(ctx context.Context, sourceID string, cause error) {
	s.logAppend(ctx, sourceID, "failed", cause.Error(), 0)
	if err := s.sources.UpdateStatus(ctx, sourceID, source.StatusError); err != nil {
		slog.ErrorContext(ctx, "failed to mark source errored", "error", err, "source_id", sourceID)
	}
}

func (s *Service) logAppend(ctx context.Context, sourceID, status, message string, durationMs int64) {
	if s.logs == nil {
		return
	}
	if err := s.logs.Append(ctx, sourceID, "chunk", status, message, durationMs); err != nil {
		slog.WarnContext(ctx, "failed to append processing log", "error", err, "source_id", sourceID)
	}
}
