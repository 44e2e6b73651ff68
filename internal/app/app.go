package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"avatar/backend/features/avatar"
	"avatar/backend/features/source"
	"avatar/backend/features/stats"
	"avatar/backend/internal/config"
	"avatar/backend/internal/embed"
	"avatar/backend/internal/ingest"
	"avatar/backend/internal/middleware"
	"avatar/backend/internal/persona"
	"avatar/backend/internal/retrieval"
	"avatar/backend/internal/worker"
)

// Database is satisfied by *sql.DB; the indirection lets tests inject a
// sqlmock connection.
type Database interface {
	PingContext(ctx context.Context) error
}

// VectorStore is the full surface the app needs from the vector database.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	StoreChunk(ctx context.Context, v embed.ChunkVector) error
	DeleteBySource(ctx context.Context, sourceID string) error
	SearchNearVector(ctx context.Context, vector []float32, threshold float32, limit int) ([]retrieval.Match, error)
	CountChunks(ctx context.Context) (int, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// AIClient bundles the embedding and completion surface of the model
// provider.
type AIClient interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	StreamChat(ctx context.Context, systemPrompt string, history []persona.Message, query string, onDelta func(string) error) error
}

type App struct {
	Handler       http.Handler
	SourceService *source.Service
	EmbedConsumer *worker.EmbedConsumer

	port int
}

func New(
	cfg *config.Config,
	db Database,
	vecStore VectorStore,
	taskPub TaskPublisher,
	ai AIClient,
	logger *slog.Logger,
) (*App, error) {
	// Cast db to *sql.DB for repositories that require it. The interface in
	// the signature keeps New mockable with sqlmock.
	sqlDB := db.(*sql.DB)

	timeout := time.Duration(cfg.ProviderTimeoutSeconds) * time.Second

	// Feature: Source
	sourceRepo := source.NewPostgresRepo(sqlDB)
	logRepo := source.NewPostgresLogRepo(sqlDB)
	sourceService := source.NewService(sourceRepo, vecStore)

	ingestService := ingest.NewService(sourceService, sourceRepo, vecStore, logRepo,
		cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)
	embedPublisher := worker.NewEmbedTaskPublisher(taskPub)
	sourceHandler := source.NewHandler(sourceService, ingestService, embedPublisher, logRepo)

	// Feature: Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(ai, vecStore, queryLogger,
		cfg.MatchThreshold, cfg.MatchCount, timeout)

	// Feature: Avatar
	interactionRepo := avatar.NewPostgresRepo(sqlDB)
	composer := persona.NewComposer(retrievalService, ai, interactionRepo)
	avatarHandler := avatar.NewHandler(composer, interactionRepo)

	// Feature: Stats
	statsHandler := stats.NewHandler(sourceRepo, interactionRepo, vecStore)

	// Worker (Embed Consumer) Setup
	embedService := embed.NewService(&chunkRepoAdapter{repo: sourceRepo}, ai, vecStore, logRepo,
		cfg.EmbedBatchSize, time.Duration(cfg.EmbedBatchDelayMs)*time.Millisecond, timeout)
	embedConsumer := worker.NewEmbedConsumer(embedService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /sources", middleware.CorrelationID(enableCORS(sourceHandler.Create)))
	mux.Handle("GET /sources", middleware.CorrelationID(enableCORS(sourceHandler.List)))
	mux.Handle("GET /sources/{id}", middleware.CorrelationID(enableCORS(sourceHandler.Get)))
	mux.Handle("DELETE /sources/{id}", middleware.CorrelationID(enableCORS(sourceHandler.Delete)))
	mux.Handle("POST /sources/{id}/process", middleware.CorrelationID(enableCORS(sourceHandler.Process)))
	mux.Handle("POST /sources/{id}/embed", middleware.CorrelationID(enableCORS(sourceHandler.Embed)))
	mux.Handle("GET /sources/{id}/logs", middleware.CorrelationID(enableCORS(sourceHandler.Logs)))
	mux.Handle("PUT /sources/{id}/status", middleware.CorrelationID(enableCORS(sourceHandler.UpdateStatus)))

	mux.Handle("POST /avatar/query", middleware.CorrelationID(enableCORS(avatarHandler.Query)))
	mux.Handle("GET /avatar/interactions", middleware.CorrelationID(enableCORS(avatarHandler.ListInteractions)))
	mux.Handle("POST /avatar/interactions/{id}/feedback", middleware.CorrelationID(enableCORS(avatarHandler.Feedback)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:       mux,
		SourceService: sourceService,
		EmbedConsumer: embedConsumer,
		port:          cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// chunkRepoAdapter narrows the source repository to what the embedding
// pipeline needs.
type chunkRepoAdapter struct {
	repo source.Repository
}

func (a *chunkRepoAdapter) GetPendingChunks(ctx context.Context, sourceID string) ([]embed.Chunk, error) {
	rows, err := a.repo.GetPendingChunks(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	chunks := make([]embed.Chunk, 0, len(rows))
	for _, c := range rows {
		chunks = append(chunks, embed.Chunk{
			ID:         c.ID,
			SourceID:   c.SourceID,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Domain:     c.Domain,
		})
	}
	return chunks, nil
}

func (a *chunkRepoAdapter) MarkEmbedded(ctx context.Context, chunkID string, tokenCount int) error {
	return a.repo.MarkEmbedded(ctx, chunkID, tokenCount)
}
