package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"avatar/backend/internal/middleware"
)

type SourceRepo interface {
	Count(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)
}

type InteractionRepo interface {
	Count(ctx context.Context) (int, error)
}

type VectorStore interface {
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	sourceRepo      SourceRepo
	interactionRepo InteractionRepo
	vectorStore     VectorStore
}

func NewHandler(s SourceRepo, i InteractionRepo, v VectorStore) *Handler {
	return &Handler{sourceRepo: s, interactionRepo: i, vectorStore: v}
}

type StatsResponse struct {
	Sources        int `json:"sources"`
	Chunks         int `json:"chunks"`
	EmbeddedChunks int `json:"embedded_chunks"`
	Interactions   int `json:"interactions"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sCount, err := h.sourceRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count sources", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count sources", http.StatusInternalServerError)
		return
	}

	cCount, err := h.sourceRepo.CountChunks(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	eCount, err := h.vectorStore.CountChunks(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count embedded chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count embedded chunks", http.StatusInternalServerError)
		return
	}

	iCount, err := h.interactionRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count interactions", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count interactions", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Sources:        sCount,
		Chunks:         cCount,
		EmbeddedChunks: eCount,
		Interactions:   iCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
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
