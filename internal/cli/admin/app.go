package admin

import (
	"context"
	"errors"
	"fmt"
	"log"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/kbvec/internal/chunking"
	"github.com/cloo-solutions/kbvec/internal/config"
	"github.com/cloo-solutions/kbvec/internal/database"
	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/jobs"
	"github.com/cloo-solutions/kbvec/internal/openai"
	"github.com/cloo-solutions/kbvec/internal/repository"
	"github.com/cloo-solutions/kbvec/internal/repository/sqlite"
	"github.com/cloo-solutions/kbvec/internal/service"
	"github.com/cloo-solutions/kbvec/internal/telemetry"
)

type documentStore interface {
	service.DocumentRepositoryInterface
	ListWithEmbeddings(ctx context.Context) ([]*domain.Document, error)
}

type jobStore interface {
	service.EmbeddingJobRepositoryInterface
	jobs.EmbeddingJobRepository
}

// stores is one backend, Postgres or SQLite, behind the service interfaces.
type stores struct {
	documents documentStore
	chunks    service.EmbeddingChunkRepository
	jobs      jobStore
	tx        service.TxRunner
	close     func()
}

// app is the composition root shared by every command.
type app struct {
	cfg        *config.Config
	stores     *stores
	embedding  *service.EmbeddingService
	documents  *service.DocumentService
	similarity *service.SimilarityService
	telemetry  func()
}

type appOptions struct {
	migrate bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	return newAppWithClient(ctx, cfg, newEmbeddingClient(cfg), opts)
}

func newAppWithClient(ctx context.Context, cfg *config.Config, client service.EmbeddingClient, opts appOptions) (*app, error) {
	shutdownTelemetry := initTelemetry(cfg)

	st, err := openStores(ctx, cfg, opts.migrate)
	if err != nil {
		shutdownTelemetry()
		return nil, err
	}

	embeddingSvc := service.NewEmbeddingServiceWithConfig(
		client,
		st.documents,
		st.chunks,
		chunking.Config{MaxChars: cfg.ChunkMaxChars, OverlapChars: cfg.ChunkOverlapChars},
		cfg.EmbedBatchSize,
	)

	return &app{
		cfg:        cfg,
		stores:     st,
		embedding:  embeddingSvc,
		documents:  service.NewDocumentService(st.documents, st.jobs, st.tx, embeddingSvc, cfg.EmbedTimeout),
		similarity: service.NewSimilarityService(st.documents),
		telemetry:  shutdownTelemetry,
	}, nil
}

func (a *app) Close() {
	a.stores.close()
	a.telemetry()
}

func loadApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(ctx, cfg, opts)
}

func openStores(ctx context.Context, cfg *config.Config, migrate bool) (*stores, error) {
	if cfg.UsesSQLite() {
		// the embedded store migrates itself on open
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Printf("using sqlite store at %s", store.Path())
		return &stores{
			documents: store.Documents(),
			chunks:    store.Chunks(),
			jobs:      store.EmbeddingJobs(),
			tx:        store,
			close: func() {
				if err := store.Close(); err != nil {
					log.Printf("failed to close sqlite store: %v", err)
				}
			},
		}, nil
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("connected to database")

	if migrate {
		if err := database.Migrate(cfg.DatabaseURL, database.DefaultMigrationsSource); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &stores{
		documents: repository.NewDocumentRepository(pool),
		chunks:    repository.NewChunkRepository(pool),
		jobs:      repository.NewEmbeddingJobRepository(pool),
		tx:        repository.NewTxRunner(pool),
		close:     pool.Close,
	}, nil
}

func newEmbeddingClient(cfg *config.Config) service.EmbeddingClient {
	if !cfg.HasOpenAI() {
		log.Println("KB_OPENAI_API_KEY not set: embedding calls will fail until it is configured")
		return &NoOpEmbeddingClient{}
	}
	return openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.EmbeddingBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		MaxBatchSize:        cfg.EmbedBatchSize,
		RateLimit:           cfg.EmbeddingRateLimit,
		Referer:             cfg.EmbeddingReferer,
		Title:               cfg.EmbeddingTitle,
	})
}

func initTelemetry(cfg *config.Config) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}

	// Default to 10% sampling in production, 100% in development
	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	return shutdown
}

var errEmbeddingNotConfigured = errors.New("embedding provider not configured: KB_OPENAI_API_KEY required")

// NoOpEmbeddingClient stands in when no provider key is configured.
type NoOpEmbeddingClient struct{}

func (c *NoOpEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, &domain.ProviderError{Err: errEmbeddingNotConfigured}
}

func (c *NoOpEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, &domain.ProviderError{Err: errEmbeddingNotConfigured}
}

func (c *NoOpEmbeddingClient) MaxBatchSize() int {
	return openai.DefaultMaxBatchSize
}
