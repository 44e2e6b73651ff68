package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"avatar/backend/internal/apperr"
	"avatar/backend/internal/middleware"
	"avatar/backend/internal/persona"
)

// Composer streams a persona response for one query.
type Composer interface {
	Respond(ctx context.Context, sessionID string, history []persona.Message, query string, useRAG bool, onDelta func(string) error) error
}

type InteractionStore interface {
	List(ctx context.Context, limit int) ([]Interaction, error)
	SaveFeedback(ctx context.Context, id string, rating int, feedback string) error
}

type Handler struct {
	composer     Composer
	interactions InteractionStore
}

func NewHandler(composer Composer, interactions InteractionStore) *Handler {
	return &Handler{composer: composer, interactions: interactions}
}

// Query streams the avatar's reply as SSE, one {"delta": ...} event per
// fragment, terminated by a [DONE] sentinel. A provider failure degrades to a
// single fallback message event so the client always receives a reply.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string            `json:"session_id"`
		Query     string            `json:"query"`
		History   []persona.Message `json:"history"`
		UseRAG    *bool             `json:"use_rag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}

	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendDelta := func(delta string) error {
		body, err := json.Marshal(map[string]string{"delta": delta})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", body); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.composer.Respond(r.Context(), req.SessionID, req.History, req.Query, useRAG, sendDelta)
	if err != nil {
		slog.ErrorContext(r.Context(), "avatar query failed", "error", err, "session_id", req.SessionID)
		if r.Context().Err() != nil {
			// Client went away; nothing left to write.
			return
		}
		if err := sendDelta(persona.FallbackMessage); err != nil {
			return
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (h *Handler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	interactions, err := h.interactions.List(r.Context(), 50)
	if err != nil {
		slog.ErrorContext(r.Context(), "operation failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if interactions == nil {
		interactions = []Interaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": interactions}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	err := h.interactions.SaveFeedback(r.Context(), r.PathValue("id"), req.Rating, req.Feedback)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		h.writeError(r.Context(), w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "operation failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"status": "recorded"}}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
