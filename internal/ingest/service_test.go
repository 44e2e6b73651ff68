package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"avatar/backend/features/source"
	"avatar/backend/internal/ingest"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, src *source.Source) error {
	args := m.Called(ctx, src)
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context) ([]source.Source, error) {
	args := m.Called(ctx)
	return args.Get(0).([]source.Source), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*source.Source, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*source.Source), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepo) BulkCreateChunks(ctx context.Context, chunks []source.Chunk) ([]string, error) {
	args := m.Called(ctx, chunks)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepo) DeleteChunksBySource(ctx context.Context, sourceID string) error {
	args := m.Called(ctx, sourceID)
	return args.Error(0)
}

func (m *MockRepo) GetChunks(ctx context.Context, sourceID string) ([]source.Chunk, error) {
	args := m.Called(ctx, sourceID)
	return args.Get(0).([]source.Chunk), args.Error(1)
}

func (m *MockRepo) GetPendingChunks(ctx context.Context, sourceID string) ([]source.Chunk, error) {
	args := m.Called(ctx, sourceID)
	return args.Get(0).([]source.Chunk), args.Error(1)
}

func (m *MockRepo) MarkEmbedded(ctx context.Context, chunkID string, tokenCount int) error {
	args := m.Called(ctx, chunkID, tokenCount)
	return args.Error(0)
}

func (m *MockRepo) CountChunks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockVectors struct {
	mock.Mock
}

func (m *MockVectors) DeleteBySource(ctx context.Context, sourceID string) error {
	args := m.Called(ctx, sourceID)
	return args.Error(0)
}

type MockLogs struct {
	mock.Mock
}

func (m *MockLogs) Append(ctx context.Context, sourceID, stage, status, message string, durationMs int64) error {
	args := m.Called(ctx, sourceID, stage, status, message, durationMs)
	return args.Error(0)
}

func newService(repo *MockRepo, vectors *MockVectors, logs ingest.ProcessLogger) *ingest.Service {
	sources := source.NewService(repo, vectors)
	return ingest.NewService(sources, repo, vectors, logs, 700, 50)
}

func TestProcessSource(t *testing.T) {
	content := strings.Repeat("Bibhrajit built autonomy companies for two decades. ", 40)

	t.Run("Success", func(t *testing.T) {
		repo := new(MockRepo)
		vectors := new(MockVectors)
		logs := new(MockLogs)

		src := &source.Source{ID: "1", Name: "Interview", Status: source.StatusUploaded, RawContent: content}
		repo.On("Get", mock.Anything, "1").Return(src, nil)
		repo.On("UpdateStatus", mock.Anything, "1", mock.Anything).Run(func(args mock.Arguments) {
			src.Status = args.String(2)
		}).Return(nil)
		vectors.On("DeleteBySource", mock.Anything, "1").Return(nil)
		repo.On("DeleteChunksBySource", mock.Anything, "1").Return(nil)
		repo.On("BulkCreateChunks", mock.Anything, mock.MatchedBy(func(chunks []source.Chunk) bool {
			if len(chunks) == 0 {
				return false
			}
			for i, c := range chunks {
				if c.SourceID != "1" || c.ChunkIndex != i || c.Domain == "" || c.TokenCount == 0 {
					return false
				}
			}
			return true
		})).Return([]string{"c1"}, nil)
		logs.On("Append", mock.Anything, "1", "chunk", "started", mock.Anything, int64(0)).Return(nil)
		logs.On("Append", mock.Anything, "1", "chunk", "completed", mock.Anything, mock.Anything).Return(nil)

		created, err := newService(repo, vectors, logs).ProcessSource(context.Background(), "1")
		assert.NoError(t, err)
		assert.Greater(t, created, 0)
		repo.AssertExpectations(t)
		logs.AssertExpectations(t)
	})

	t.Run("SanitizesBeforeChunking", func(t *testing.T) {
		repo := new(MockRepo)
		vectors := new(MockVectors)

		raw := "Contact alice@example.com about the deal. " + content
		src := &source.Source{ID: "1", Name: "Email", Status: source.StatusUploaded, RawContent: raw}
		repo.On("Get", mock.Anything, "1").Return(src, nil)
		repo.On("UpdateStatus", mock.Anything, "1", mock.Anything).Run(func(args mock.Arguments) {
			src.Status = args.String(2)
		}).Return(nil)
		vectors.On("DeleteBySource", mock.Anything, "1").Return(nil)
		repo.On("DeleteChunksBySource", mock.Anything, "1").Return(nil)
		repo.On("BulkCreateChunks", mock.Anything, mock.MatchedBy(func(chunks []source.Chunk) bool {
			for _, c := range chunks {
				if strings.Contains(c.Content, "alice@example.com") {
					return false
				}
			}
			return true
		})).Return([]string{"c1"}, nil)

		_, err := newService(repo, vectors, nil).ProcessSource(context.Background(), "1")
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("PersistFailureMarksError", func(t *testing.T) {
		repo := new(MockRepo)
		vectors := new(MockVectors)
		logs := new(MockLogs)

		src := &source.Source{ID: "1", Name: "Interview", Status: source.StatusUploaded, RawContent: content}
		repo.On("Get", mock.Anything, "1").Return(src, nil)
		repo.On("UpdateStatus", mock.Anything, "1", source.StatusProcessing).Return(nil).Once()
		vectors.On("DeleteBySource", mock.Anything, "1").Return(nil)
		repo.On("DeleteChunksBySource", mock.Anything, "1").Return(nil)
		repo.On("BulkCreateChunks", mock.Anything, mock.Anything).Return([]string(nil), errors.New("db down"))
		repo.On("UpdateStatus", mock.Anything, "1", source.StatusError).Return(nil)
		logs.On("Append", mock.Anything, "1", "chunk", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		_, err := newService(repo, vectors, logs).ProcessSource(context.Background(), "1")
		assert.Error(t, err)
		repo.AssertCalled(t, "UpdateStatus", mock.Anything, "1", source.StatusError)
	})

	t.Run("UnknownSource", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "missing").Return(nil, errors.New("not found"))

		_, err := newService(repo, new(MockVectors), nil).ProcessSource(context.Background(), "missing")
		assert.Error(t, err)
	})
}
