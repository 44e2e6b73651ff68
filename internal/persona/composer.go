package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"avatar/backend/internal/retrieval"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryWindow bounds how much prior conversation is replayed to the model:
// the last 8 turns (one turn = user message + assistant reply).
const HistoryWindow = 8

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Retriever interface {
	Search(ctx context.Context, query string, opts *retrieval.SearchOptions) ([]retrieval.Match, error)
}

type ChatStreamer interface {
	StreamChat(ctx context.Context, systemPrompt string, history []Message, query string, onDelta func(string) error) error
}

// InteractionRecord captures one clean query-response cycle for analytics.
type InteractionRecord struct {
	SessionID         string
	UserQuery         string
	RetrievedChunks   []string
	GeneratedResponse string
	ResponseTimeMs    int64
}

type InteractionRecorder interface {
	Record(ctx context.Context, rec InteractionRecord) error
}

// Composer assembles the persona prompt from retrieved context and streams
// the completion to a single consumer.
type Composer struct {
	retriever    Retriever
	chat         ChatStreamer
	interactions InteractionRecorder
}

func NewComposer(r Retriever, c ChatStreamer, i InteractionRecorder) *Composer {
	return &Composer{retriever: r, chat: c, interactions: i}
}

// Respond streams response fragments for query to onDelta. With useRAG the
// query is first run through the retriever; empty retrieval degrades to the
// context-free persona prompt rather than failing. One interaction row is
// written only after the stream completes cleanly.
func (c *Composer) Respond(ctx context.Context, sessionID string, history []Message, query string, useRAG bool, onDelta func(string) error) error {
	start := time.Now()

	contextBlock := ""
	var chunkIDs []string

	if useRAG {
		matches, err := c.retriever.Search(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		if len(matches) > 0 {
			parts := make([]string, 0, len(matches))
			chunkIDs = make([]string, 0, len(matches))
			for _, m := range matches {
				parts = append(parts, fmt.Sprintf("[From %s]: %s", m.Domain, m.Content))
				chunkIDs = append(chunkIDs, m.ChunkID)
			}
			contextBlock = strings.Join(parts, "\n\n")
			slog.InfoContext(ctx, "retrieved context for query", "chunks", len(matches), "session_id", sessionID)
		} else {
			slog.InfoContext(ctx, "no relevant chunks found, using context-free prompt", "session_id", sessionID)
		}
	}

	systemPrompt := BuildSystemPrompt(contextBlock, query)
	trimmed := TrimHistory(history, HistoryWindow)

	var full strings.Builder
	err := c.chat.StreamChat(ctx, systemPrompt, trimmed, query, func(delta string) error {
		full.WriteString(delta)
		return onDelta(delta)
	})
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}

	if c.interactions != nil && sessionID != "" {
		rec := InteractionRecord{
			SessionID:         sessionID,
			UserQuery:         query,
			RetrievedChunks:   chunkIDs,
			GeneratedResponse: full.String(),
			ResponseTimeMs:    time.Since(start).Milliseconds(),
		}
		if err := c.interactions.Record(ctx, rec); err != nil {
			// The reply already streamed; analytics loss is not worth
			// failing the request.
			slog.WarnContext(ctx, "failed to record interaction", "error", err, "session_id", sessionID)
		}
	}

	return nil
}

// TrimHistory drops system messages and keeps the most recent turns.
func TrimHistory(history []Message, turns int) []Message {
	filtered := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == RoleSystem {
			continue
		}
		filtered = append(filtered, m)
	}

	max := turns * 2
	if len(filtered) > max {
		filtered = filtered[len(filtered)-max:]
	}
	return filtered
}
