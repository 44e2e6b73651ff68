package worker

import (
	"context"
	"encoding/json"

	"avatar/backend/internal/config"
	"avatar/backend/internal/middleware"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// EmbedTaskPublisher queues sources for embedding, carrying the request's
// correlation id across the message boundary.
type EmbedTaskPublisher struct {
	pub EventPublisher
}

func NewEmbedTaskPublisher(pub EventPublisher) *EmbedTaskPublisher {
	return &EmbedTaskPublisher{pub: pub}
}

func (p *EmbedTaskPublisher) PublishEmbedTask(ctx context.Context, sourceID string) error {
	body, err := json.Marshal(EmbedTaskPayload{
		SourceID:      sourceID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	return p.pub.Publish(config.TopicEmbedTask, body)
}
