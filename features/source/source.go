package source

import (
	"context"
	"log/slog"
	"time"

	"avatar/backend/internal/apperr"
)

// Source statuses follow the canonical order uploaded -> processing ->
// processed, with error reachable from any state.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusError      = "error"
)

const (
	TypeArticle         = "article"
	TypeDocument        = "document"
	TypeAudioTranscript = "audio-transcript"
	TypeSocialPost      = "social-post"
	TypeEmail           = "email"
	TypeStrategicDoc    = "strategic-doc"
)

var validTypes = map[string]bool{
	TypeArticle:         true,
	TypeDocument:        true,
	TypeAudioTranscript: true,
	TypeSocialPost:      true,
	TypeEmail:           true,
	TypeStrategicDoc:    true,
}

var validTransitions = map[string]map[string]bool{
	StatusUploaded:   {StatusProcessing: true, StatusError: true},
	StatusProcessing: {StatusProcessed: true, StatusError: true},
	StatusProcessed:  {StatusProcessing: true, StatusError: true}, // re-process
	StatusError:      {StatusProcessing: true},                    // retry
}

type Source struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	RawContent string         `json:"raw_content,omitempty"`
	SourceURL  string         `json:"source_url,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Chunk is one retrieval unit derived from a source. The vector itself lives
// in the vector store under the chunk id; Embedded flips once it is attached.
type Chunk struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	TokenCount int            `json:"token_count"`
	Domain     string         `json:"domain"`
	Embedded   bool           `json:"embedded"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ProcessingLog is one append-only audit entry per pipeline stage transition.
type ProcessingLog struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository interface {
	Save(ctx context.Context, src *Source) error
	List(ctx context.Context) ([]Source, error)
	Get(ctx context.Context, id string) (*Source, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string) error
	Count(ctx context.Context) (int, error)

	BulkCreateChunks(ctx context.Context, chunks []Chunk) ([]string, error)
	DeleteChunksBySource(ctx context.Context, sourceID string) error
	GetChunks(ctx context.Context, sourceID string) ([]Chunk, error)
	GetPendingChunks(ctx context.Context, sourceID string) ([]Chunk, error)
	MarkEmbedded(ctx context.Context, chunkID string, tokenCount int) error
	CountChunks(ctx context.Context) (int, error)
}

// ChunkStore is the vector-store side of a source's chunks, needed for
// cascade deletion.
type ChunkStore interface {
	DeleteBySource(ctx context.Context, sourceID string) error
}

type Service struct {
	repo       Repository
	chunkStore ChunkStore
}

func NewService(repo Repository, chunkStore ChunkStore) *Service {
	return &Service{repo: repo, chunkStore: chunkStore}
}

func (s *Service) Create(ctx context.Context, src *Source) error {
	if src.Name == "" {
		return apperr.Validation("name is required")
	}
	if !validTypes[src.Type] {
		return apperr.Validation("unknown source type %q", src.Type)
	}
	if src.RawContent == "" {
		return apperr.Validation("raw content is required for type %q", src.Type)
	}

	src.Status = StatusUploaded
	if err := s.repo.Save(ctx, src); err != nil {
		return err
	}

	slog.InfoContext(ctx, "source created", "id", src.ID, "type", src.Type, "name", src.Name)
	return nil
}

func (s *Service) List(ctx context.Context) ([]Source, error) {
	return s.repo.List(ctx)
}

type SourceDetail struct {
	Source
	Chunks      []Chunk `json:"chunks"`
	TotalChunks int     `json:"total_chunks"`
}

func (s *Service) Get(ctx context.Context, id string) (*SourceDetail, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.repo.GetChunks(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch chunks", "error", err, "source_id", id)
		chunks = []Chunk{}
	}

	return &SourceDetail{
		Source:      *src,
		Chunks:      chunks,
		TotalChunks: len(chunks),
	}, nil
}

// Delete removes the source, its chunks and their vectors. Deleting an
// unknown (or already-deleted) id reports not-found, never silent success.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.chunkStore.DeleteBySource(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// UpdateStatus enforces the canonical transition order so a source can never
// get stuck in an unreachable state.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) error {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if src.Status == status {
		return nil
	}
	if !validTransitions[src.Status][status] {
		return apperr.Validation("invalid status transition %s -> %s", src.Status, status)
	}
	return s.repo.UpdateStatus(ctx, id, status)
}
