package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"avatar/backend/internal/apperr"
	"avatar/backend/internal/persona"
)

type MockComposer struct {
	mock.Mock

	deltas []string
}

func (m *MockComposer) Respond(ctx context.Context, sessionID string, history []persona.Message, query string, useRAG bool, onDelta func(string) error) error {
	args := m.Called(ctx, sessionID, history, query, useRAG)
	for _, d := range m.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return args.Error(0)
}

type MockInteractionStore struct {
	mock.Mock
}

func (m *MockInteractionStore) List(ctx context.Context, limit int) ([]Interaction, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]Interaction), args.Error(1)
}

func (m *MockInteractionStore) SaveFeedback(ctx context.Context, id string, rating int, feedback string) error {
	args := m.Called(ctx, id, rating, feedback)
	return args.Error(0)
}

func newTestMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /avatar/query", h.Query)
	mux.HandleFunc("GET /avatar/interactions", h.ListInteractions)
	mux.HandleFunc("POST /avatar/interactions/{id}/feedback", h.Feedback)
	return mux
}

func sseEvents(body string) []string {
	var events []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestHandler_Query(t *testing.T) {
	t.Run("StreamsDeltas", func(t *testing.T) {
		composer := &MockComposer{deltas: []string{"Hello", " world"}}
		composer.On("Respond", mock.Anything, "s1", mock.Anything, "How do you invest?", true).Return(nil)

		h := NewHandler(composer, new(MockInteractionStore))
		mux := newTestMux(h)

		body, _ := json.Marshal(map[string]any{"session_id": "s1", "query": "How do you invest?"})
		req := httptest.NewRequest(http.MethodPost, "/avatar/query", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		events := sseEvents(rec.Body.String())
		assert.Len(t, events, 3)
		assert.JSONEq(t, `{"delta":"Hello"}`, events[0])
		assert.JSONEq(t, `{"delta":" world"}`, events[1])
		assert.Equal(t, "[DONE]", events[2])
	})

	t.Run("RAGCanBeDisabled", func(t *testing.T) {
		composer := &MockComposer{deltas: []string{"ok"}}
		composer.On("Respond", mock.Anything, "", mock.Anything, "query", false).Return(nil)

		h := NewHandler(composer, new(MockInteractionStore))
		mux := newTestMux(h)

		body, _ := json.Marshal(map[string]any{"query": "query", "use_rag": false})
		req := httptest.NewRequest(http.MethodPost, "/avatar/query", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		composer.AssertExpectations(t)
	})

	t.Run("MissingQuery", func(t *testing.T) {
		h := NewHandler(new(MockComposer), new(MockInteractionStore))
		mux := newTestMux(h)

		body, _ := json.Marshal(map[string]any{"session_id": "s1"})
		req := httptest.NewRequest(http.MethodPost, "/avatar/query", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	})

	t.Run("FailureYieldsFallback", func(t *testing.T) {
		composer := new(MockComposer)
		composer.On("Respond", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("provider down"))

		h := NewHandler(composer, new(MockInteractionStore))
		mux := newTestMux(h)

		body, _ := json.Marshal(map[string]any{"query": "query"})
		req := httptest.NewRequest(http.MethodPost, "/avatar/query", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		events := sseEvents(rec.Body.String())
		assert.Len(t, events, 2)

		var payload map[string]string
		assert.NoError(t, json.Unmarshal([]byte(events[0]), &payload))
		assert.Equal(t, persona.FallbackMessage, payload["delta"])
		assert.Equal(t, "[DONE]", events[1])
	})
}

func TestHandler_ListInteractions(t *testing.T) {
	store := new(MockInteractionStore)
	store.On("List", mock.Anything, 50).Return([]Interaction{
		{ID: "i1", SessionID: "s1", UserQuery: "q"},
	}, nil)

	h := NewHandler(new(MockComposer), store)
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodGet, "/avatar/interactions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "i1")
}

func TestHandler_Feedback(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		store := new(MockInteractionStore)
		store.On("SaveFeedback", mock.Anything, "i1", 5, "great").Return(nil)

		h := NewHandler(new(MockComposer), store)
		mux := newTestMux(h)

		body, _ := json.Marshal(map[string]any{"rating": 5, "feedback": "great"})
		req := httptest.NewRequest(http.MethodPost, "/avatar/interactions/i1/feedback", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		store.AssertExpectations(t)
	})

	t.Run("RatingOutOfRange", func(t *testing.T) {
		h := NewHandler(new(MockComposer), new(MockInteractionStore))
		mux := newTestMux(h)

		for _, rating := range []int{0, 6, -1} {
			body, _ := json.Marshal(map[string]any{"rating": rating})
			req := httptest.NewRequest(http.MethodPost, "/avatar/interactions/i1/feedback", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := new(MockInteractionStore)
		store.On("SaveFeedback", mock.Anything, "missing", 3, "").Return(apperr.NotFound("interaction missing"))

		h := NewHandler(new(MockComposer), store)
		mux := newTestMux(h)

		body, _ := json.Marshal(map[string]any{"rating": 3})
		req := httptest.NewRequest(http.MethodPost, "/avatar/interactions/missing/feedback", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
