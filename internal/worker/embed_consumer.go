package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"avatar/backend/internal/middleware"
)

// EmbedService is the embedding pipeline the consumer drives.
type EmbedService interface {
	EmbedSource(ctx context.Context, sourceID string) (succeeded, failed int, err error)
}

type EmbedConsumer struct {
	embeds EmbedService
}

func NewEmbedConsumer(embeds EmbedService) *EmbedConsumer {
	return &EmbedConsumer{embeds: embeds}
}

func (h *EmbedConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload EmbedTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.SourceID == "" {
		slog.Error("poison pill: missing source_id")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	succeeded, failed, err := h.embeds.EmbedSource(ctx, payload.SourceID)
	if err != nil {
		slog.ErrorContext(ctx, "embed task failed", "error", err, "source_id", payload.SourceID)
		return err // Retry
	}

	slog.InfoContext(ctx, "embed task finished", "source_id", payload.SourceID, "succeeded", succeeded, "failed", failed)
	return nil
}
