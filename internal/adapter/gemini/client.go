package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"avatar/backend/internal/apperr"
)

// EmbeddingDimensions is the fixed output width of the embedding model.
// Corpus chunks and live queries must both use it; anything else is a
// correctness bug, so the adapter rejects mismatched vectors outright.
const EmbeddingDimensions = 3072

type Client struct {
	client     *genai.Client
	embedModel string
	chatModel  string
}

func NewClient(ctx context.Context, apiKey, embedModel, chatModel string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, embedModel: embedModel, chatModel: chatModel}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Embed converts text into a fixed-length vector.
func (c *Client) Embed(ctx context.Context, content string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", c.embedModel, "length", len(content))

	em := c.client.EmbeddingModel(c.embedModel)
	res, err := em.EmbedContent(ctx, genai.Text(content))
	if err != nil {
		return nil, classifyErr(err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, apperr.Provider(fmt.Errorf("empty embedding received"))
	}
	if len(res.Embedding.Values) != EmbeddingDimensions {
		return nil, apperr.Provider(fmt.Errorf("embedding dimensionality %d, want %d", len(res.Embedding.Values), EmbeddingDimensions))
	}
	return res.Embedding.Values, nil
}

// classifyErr maps provider failures onto the shared taxonomy so callers can
// decide between backoff and abort.
func classifyErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return fmt.Errorf("%w: %v", apperr.ErrRateLimit, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%w: %v", apperr.ErrRateLimit, err)
	}
	return apperr.Provider(err)
}
