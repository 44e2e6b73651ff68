package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"avatar/backend/internal/apperr"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, src *Source) error {
	args := m.Called(ctx, src)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context) ([]Source, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Source), args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id string) (*Source, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Source), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) BulkCreateChunks(ctx context.Context, chunks []Chunk) ([]string, error) {
	args := m.Called(ctx, chunks)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepository) DeleteChunksBySource(ctx context.Context, sourceID string) error {
	args := m.Called(ctx, sourceID)
	return args.Error(0)
}

func (m *MockRepository) GetChunks(ctx context.Context, sourceID string) ([]Chunk, error) {
	args := m.Called(ctx, sourceID)
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockRepository) GetPendingChunks(ctx context.Context, sourceID string) ([]Chunk, error) {
	args := m.Called(ctx, sourceID)
	return args.Get(0).([]Chunk), args.Error(1)
}

func (m *MockRepository) MarkEmbedded(ctx context.Context, chunkID string, tokenCount int) error {
	args := m.Called(ctx, chunkID, tokenCount)
	return args.Error(0)
}

func (m *MockRepository) CountChunks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) DeleteBySource(ctx context.Context, sourceID string) error {
	args := m.Called(ctx, sourceID)
	return args.Error(0)
}

// --- Tests ---

func TestService_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockChunkStore))

		repo.On("Save", mock.Anything, mock.Anything).Return(nil)

		src := &Source{Name: "Interview", Type: TypeArticle, RawContent: "content"}
		err := svc.Create(context.Background(), src)

		assert.NoError(t, err)
		assert.Equal(t, StatusUploaded, src.Status)
		repo.AssertExpectations(t)
	})

	t.Run("MissingName", func(t *testing.T) {
		svc := NewService(new(MockRepository), new(MockChunkStore))

		err := svc.Create(context.Background(), &Source{Type: TypeArticle, RawContent: "content"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("UnknownType", func(t *testing.T) {
		svc := NewService(new(MockRepository), new(MockChunkStore))

		err := svc.Create(context.Background(), &Source{Name: "x", Type: "podcast", RawContent: "content"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("MissingContent", func(t *testing.T) {
		svc := NewService(new(MockRepository), new(MockChunkStore))

		err := svc.Create(context.Background(), &Source{Name: "x", Type: TypeDocument})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestService_Get(t *testing.T) {
	t.Run("WithChunks", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockChunkStore))

		repo.On("Get", mock.Anything, "1").Return(&Source{ID: "1", Name: "Interview"}, nil)
		repo.On("GetChunks", mock.Anything, "1").Return([]Chunk{{ID: "c1"}, {ID: "c2"}}, nil)

		detail, err := svc.Get(context.Background(), "1")
		assert.NoError(t, err)
		assert.Equal(t, 2, detail.TotalChunks)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockChunkStore))

		repo.On("Get", mock.Anything, "missing").Return(nil, apperr.NotFound("source missing"))

		_, err := svc.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestService_Delete(t *testing.T) {
	t.Run("CascadesToVectors", func(t *testing.T) {
		repo := new(MockRepository)
		store := new(MockChunkStore)
		svc := NewService(repo, store)

		repo.On("Get", mock.Anything, "1").Return(&Source{ID: "1"}, nil)
		store.On("DeleteBySource", mock.Anything, "1").Return(nil)
		repo.On("Delete", mock.Anything, "1").Return(nil)

		assert.NoError(t, svc.Delete(context.Background(), "1"))
		store.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("RepeatedDeleteIsNotFound", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockChunkStore))

		repo.On("Get", mock.Anything, "1").Return(nil, apperr.NotFound("source 1"))

		err := svc.Delete(context.Background(), "1")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("VectorFailureAborts", func(t *testing.T) {
		repo := new(MockRepository)
		store := new(MockChunkStore)
		svc := NewService(repo, store)

		repo.On("Get", mock.Anything, "1").Return(&Source{ID: "1"}, nil)
		store.On("DeleteBySource", mock.Anything, "1").Return(errors.New("weaviate down"))

		err := svc.Delete(context.Background(), "1")
		assert.Error(t, err)
		repo.AssertNotCalled(t, "Delete", mock.Anything, "1")
	})
}

func TestService_UpdateStatus(t *testing.T) {
	cases := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"UploadedToProcessing", StatusUploaded, StatusProcessing, true},
		{"ProcessingToProcessed", StatusProcessing, StatusProcessed, true},
		{"ProcessedToProcessing", StatusProcessed, StatusProcessing, true},
		{"ErrorToProcessing", StatusError, StatusProcessing, true},
		{"UploadedToProcessed", StatusUploaded, StatusProcessed, false},
		{"ErrorToProcessed", StatusError, StatusProcessed, false},
		{"ProcessedToUploaded", StatusProcessed, StatusUploaded, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := NewService(repo, new(MockChunkStore))

			repo.On("Get", mock.Anything, "1").Return(&Source{ID: "1", Status: tc.from}, nil)
			if tc.allowed {
				repo.On("UpdateStatus", mock.Anything, "1", tc.to).Return(nil)
			}

			err := svc.UpdateStatus(context.Background(), "1", tc.to)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			}
		})
	}

	t.Run("SameStatusIsNoOp", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, new(MockChunkStore))

		repo.On("Get", mock.Anything, "1").Return(&Source{ID: "1", Status: StatusProcessed}, nil)

		assert.NoError(t, svc.UpdateStatus(context.Background(), "1", StatusProcessed))
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, "1", StatusProcessed)
	})
}
