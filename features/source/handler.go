package source

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"avatar/backend/internal/apperr"
	"avatar/backend/internal/middleware"
)

// Processor chunks a source's raw content synchronously and reports how many
// chunks were created.
type Processor interface {
	ProcessSource(ctx context.Context, sourceID string) (int, error)
}

// TaskPublisher hands a source off to the async embedding pipeline.
type TaskPublisher interface {
	PublishEmbedTask(ctx context.Context, sourceID string) error
}

type LogReader interface {
	ListBySource(ctx context.Context, sourceID string) ([]ProcessingLog, error)
}

type Handler struct {
	service   *Service
	processor Processor
	publisher TaskPublisher
	logs      LogReader
}

func NewHandler(service *Service, processor Processor, publisher TaskPublisher, logs LogReader) *Handler {
	return &Handler{service: service, processor: processor, publisher: publisher, logs: logs}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	// 10 MB cap on raw content payloads
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	var req struct {
		Name       string         `json:"name"`
		Type       string         `json:"type"`
		RawContent string         `json:"raw_content"`
		SourceURL  string         `json:"source_url"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	src := &Source{
		Name:       req.Name,
		Type:       req.Type,
		RawContent: req.RawContent,
		SourceURL:  req.SourceURL,
		Metadata:   req.Metadata,
	}
	if err := h.service.Create(r.Context(), src); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	// Never echo raw content back to the client.
	src.RawContent = ""

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": src}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	if sources == nil {
		sources = []Source{}
	}
	h.writeJSON(w, map[string]interface{}{"data": sources})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	detail.RawContent = ""
	h.writeJSON(w, map[string]interface{}{"data": detail})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Process chunks the source synchronously and queues it for embedding.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	created, err := h.processor.ProcessSource(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	if err := h.publisher.PublishEmbedTask(r.Context(), id); err != nil {
		// Chunks are persisted; embedding can be re-requested.
		slog.ErrorContext(r.Context(), "failed to queue embed task", "error", err, "source_id", id)
	}

	h.writeJSON(w, map[string]interface{}{"data": map[string]int{"chunks_created": created}})
}

// Embed re-queues a source for embedding, e.g. after a partial failure.
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	if err := h.publisher.PublishEmbedTask(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "failed to queue embed task", "error", err, "source_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	h.writeJSON(w, map[string]interface{}{"data": map[string]string{"status": "queued"}})
}

func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	logs, err := h.logs.ListBySource(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	if logs == nil {
		logs = []ProcessingLog{}
	}
	h.writeJSON(w, map[string]interface{}{"data": logs})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), req.Status); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, map[string]interface{}{"data": map[string]string{"status": req.Status}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperr.ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", err.Error(), http.StatusNotFound)
	default:
		slog.ErrorContext(ctx, "operation failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
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
