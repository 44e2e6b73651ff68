package gemini

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"avatar/backend/internal/persona"
)

// Generation parameters mirror the production deployment; they are part of
// the persona's voice, not tunables.
const (
	chatTemperature     = 0.7
	chatMaxOutputTokens = 1000
)

// StreamChat streams a completion for query, given a composed system prompt
// and prior conversation turns. Deltas are forwarded to onDelta in arrival
// order; cancelling ctx stops consuming the upstream stream.
func (c *Client) StreamChat(ctx context.Context, systemPrompt string, history []persona.Message, query string, onDelta func(string) error) error {
	model := c.client.GenerativeModel(c.chatModel)
	model.SetTemperature(chatTemperature)
	model.SetMaxOutputTokens(chatMaxOutputTokens)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	cs := model.StartChat()
	for _, m := range history {
		role := "user"
		if m.Role == persona.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	it := cs.SendMessageStream(ctx, genai.Text(query))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return classifyErr(err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok && t != "" {
					if err := onDelta(string(t)); err != nil {
						return err
					}
				}
			}
		}
	}
}
