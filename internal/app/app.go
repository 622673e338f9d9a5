// Package app builds the object graph shared by the API server, the queue
// worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"cinemind/internal/ai"
	"cinemind/internal/config"
	"cinemind/internal/crawler"
	"cinemind/internal/logger"
	"cinemind/internal/queue"
	"cinemind/internal/telemetry"
	"cinemind/internal/vectorstore"
	"cinemind/services"
	"cinemind/utils"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App holds the long-lived clients. Close releases them in reverse order.
type App struct {
	Config      *config.Config
	Metrics     *telemetry.Metrics
	Index       *vectorstore.Store
	Embeddings  *ai.EmbeddingClient
	Generator   *ai.GeminiClient
	Sentiment   *services.SentimentClient
	Coordinator *services.IngestionCoordinator
	Inspector   *services.IndexInspector
	Export      *services.ExportService
	RAG         *services.RAGPipeline
	JobStore    services.JobStore

	// Redis is nil when REDIS_URL is empty or unreachable.
	Redis *redis.Client
	// Mongo is nil unless JOB_STORE=mongo.
	Mongo *mongo.Client

	closers []func() error
}

// New connects every dependency described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application wired",
		"vector_store", a.Index.Path(),
		"collection", a.Index.Collection(),
		"job_store", cfg.JobStore,
		"redis", a.Redis != nil)
	return a, nil
}

func (a *App) wire(ctx context.Context) (err error) {
	cfg := a.Config

	a.Metrics, err = telemetry.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	a.Index, err = vectorstore.Open(cfg.VectorStorePath, cfg.VectorCollection,
		vectorstore.WithDimensions(cfg.VectorDimensions),
		vectorstore.WithMismatchHook(func(got, want int) {
			a.Metrics.RecordDimensionMismatch(cfg.VectorCollection, got, want)
		}))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	a.closers = append(a.closers, a.Index.Close)

	if cfg.RedisURL != "" {
		rctx, cancel := utils.WithStoreTimeout(ctx)
		rdb, rerr := config.NewRedisClient(rctx, cfg)
		cancel()
		if rerr != nil {
			logger.Warn("redis unavailable, continuing without shared cache", "error", rerr)
		} else {
			a.Redis = rdb
			a.closers = append(a.closers, rdb.Close)
		}
	}

	if cfg.JobStore == "mongo" {
		mctx, cancel := utils.WithStoreTimeout(ctx)
		a.Mongo, err = config.ConnectMongoDB(mctx, cfg)
		cancel()
		if err != nil {
			return err
		}
		mc := a.Mongo
		a.closers = append(a.closers, func() error {
			dctx, cancel := utils.WithStoreTimeout(context.Background())
			defer cancel()
			return mc.Disconnect(dctx)
		})
		a.JobStore = services.NewMongoJobStore(a.Mongo.Database(cfg.DBName))
	} else {
		a.JobStore = services.NewMemoryJobStore()
	}

	breakerObserver := ai.WithBreakerObserver(a.Metrics.RecordCircuitBreakerState)
	provider, err := ai.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, breakerObserver)
	if err != nil {
		return fmt.Errorf("init embeddings: %w", err)
	}
	a.Embeddings = ai.NewEmbeddingClient(provider, ai.EmbeddingClientConfig{
		Model:      cfg.GoogleEmbeddingsModel,
		BatchDelay: cfg.EmbedBatchDelay,
		Dimensions: cfg.VectorDimensions,
	}, ai.WithQueryCache(services.NewEmbeddingCache(a.UniversalRedis(), cfg.QueryCacheSize, cfg.QueryCacheTTL)))
	a.closers = append(a.closers, a.Embeddings.Close)

	a.Generator, err = ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GenerationModel, cfg.GeminiTier, breakerObserver)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	a.closers = append(a.closers, a.Generator.Close)

	a.Sentiment = services.NewSentimentClientFromConfig(cfg, services.WithSentimentMetrics(a.Metrics))

	scraper := crawler.NewReviewScraper(crawler.ScrapeConfig{
		BaseURL:   cfg.IMDbBaseURL,
		Timeout:   cfg.ScrapeRequestTimeout,
		JitterMin: cfg.ScrapeJitterMin,
		JitterMax: cfg.ScrapeJitterMax,
		RenderJS:  cfg.IMDbRenderJS,
	})
	scripts := services.NewScriptLoader(cfg.ScriptsDir, services.NewScriptChunker(cfg.ScriptChunkSize, cfg.ScriptChunkOverlap))
	catalog := services.NewTMDbClient(cfg.TMDbBaseURL, cfg.TMDbAPIKey, cfg.TMDbLanguage, cfg.TMDbRateLimit)

	a.Coordinator = services.NewIngestionCoordinator(catalog, scraper, scripts, a.Sentiment, a.Embeddings, a.Index,
		services.IngestionConfig{
			SentimentBatchSize: cfg.SentimentBatchSize,
			EmbedBatchSize:     cfg.EmbedBatchSize,
			TargetDelay:        cfg.ScrapeTargetDelay,
			MaxScrapeReviews:   cfg.ScrapeMaxReviews,
		},
		services.WithCoordinatorMetrics(a.Metrics))
	// the coordinator owns the sentiment client from here on
	a.closers = append(a.closers, func() error { a.Coordinator.Close(); return nil })

	a.Inspector = services.NewIndexInspector(a.Index)
	a.Export = services.NewExportService(a.Inspector)
	var ragOpts []services.RAGOption
	if cfg.TMDbAPIKey != "" {
		ragOpts = append(ragOpts, services.WithMovieMetadata(catalog))
	}
	a.RAG = services.NewRAGPipeline(
		services.NewRetriever(a.Embeddings, a.Index),
		services.NewContextBuilder(cfg.ContextMaxTokens),
		a.Generator,
		a.Metrics,
		ragOpts...,
	)
	return nil
}

// UniversalRedis returns the Redis client as an interface value that is nil
// when no client is connected.
func (a *App) UniversalRedis() redis.UniversalClient {
	if a.Redis == nil {
		return nil
	}
	return a.Redis
}

// NewExecutor builds the executor that runs stored jobs with the coordinator.
func (a *App) NewExecutor() *services.IngestExecutor {
	return services.NewIngestExecutor(a.JobStore, a.Coordinator)
}

// StartJobs returns the job service for the configured backend and a
// shutdown func that stops in-process jobs or closes the queue client.
func (a *App) StartJobs() (*services.JobService, func(context.Context) error, error) {
	switch a.Config.JobBackend {
	case "asynq":
		opt, err := queue.RedisOpt(a.Config)
		if err != nil {
			return nil, nil, err
		}
		d := services.NewAsynqDispatcher(opt)
		return services.NewJobService(a.JobStore, d), func(context.Context) error { return d.Close() }, nil
	default:
		d := services.NewInProcessDispatcher(a.NewExecutor())
		return services.NewJobService(a.JobStore, d), d.Shutdown, nil
	}
}

// Close releases every client opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
