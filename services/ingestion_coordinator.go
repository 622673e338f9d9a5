package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cinemind/internal/crawler"
	"cinemind/internal/logger"
	"cinemind/internal/telemetry"
	"cinemind/models"
	"cinemind/utils"
)

const (
	DefaultAPILimit         = 5
	DefaultScrapeLimit      = 3
	DefaultItemDelay        = 500 * time.Millisecond
	DefaultTargetDelay      = 3 * time.Second
	DefaultMaxScrapeReviews = 5
)

// CatalogSource is the movie catalog API.
type CatalogSource interface {
	PopularMovies(ctx context.Context, page int) ([]CatalogEntry, error)
	GetMovie(ctx context.Context, tmdbID int) (*models.Movie, error)
	GetReviews(ctx context.Context, tmdbID int, movieID string, maxPages int) ([]*models.TMDbReview, error)
}

// ReviewSource scrapes reviews for a title. It returns an empty list on failure.
type ReviewSource interface {
	FetchReviews(ctx context.Context, imdbID string, maxReviews int) []crawler.ScrapedReview
}

// ScriptSource lists and chunks screenplay files.
type ScriptSource interface {
	Scan() ([]string, error)
	Load(ctx context.Context, path string) (*ScriptDocument, error)
}

type SentimentClassifier interface {
	ClassifyBatch(ctx context.Context, texts []string, batchSize int) ([]models.SentimentResult, int, error)
	Close()
}

type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

type DocumentWriter interface {
	Add(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) ([]string, error)
}

// IngestItem pairs a raw record with the movie it belongs to.
type IngestItem struct {
	Movie  models.Movie
	Record models.SourceRecord
}

// StoreResult counts what one AnalyzeAndStore call did.
type StoreResult struct {
	Documents         int
	Stored            int
	EmbeddingFailures int
	SentimentFallback int
}

// IngestionConfig tunes pacing and batching. Zero values take the defaults.
type IngestionConfig struct {
	SentimentBatchSize int
	EmbedBatchSize     int
	ItemDelay          time.Duration
	TargetDelay        time.Duration
	MaxScrapeReviews   int
	Targets            []crawler.Target
}

// Limits caps how many movies each pipeline processes in a composite run.
type Limits struct {
	API    int
	Scrape int
}

type CoordinatorOption func(*IngestionCoordinator)

func WithCoordinatorSleep(fn utils.SleepFunc) CoordinatorOption {
	return func(c *IngestionCoordinator) { c.sleep = fn }
}

func WithCoordinatorMetrics(m *telemetry.Metrics) CoordinatorOption {
	return func(c *IngestionCoordinator) { c.metrics = m }
}

func WithNormalizer(n *Normalizer) CoordinatorOption {
	return func(c *IngestionCoordinator) { c.normalizer = n }
}

// IngestionCoordinator drives the three ingestion pipelines. Each one ends in
// AnalyzeAndStore.
type IngestionCoordinator struct {
	catalog    CatalogSource
	scraper    ReviewSource
	scripts    ScriptSource
	sentiment  SentimentClassifier
	embedder   DocumentEmbedder
	index      DocumentWriter
	normalizer *Normalizer
	metrics    *telemetry.Metrics
	cfg        IngestionConfig
	sleep      utils.SleepFunc
	now        func() time.Time
	log        *slog.Logger
}

func NewIngestionCoordinator(catalog CatalogSource, scraper ReviewSource, scripts ScriptSource,
	sentiment SentimentClassifier, embedder DocumentEmbedder, index DocumentWriter,
	cfg IngestionConfig, opts ...CoordinatorOption) *IngestionCoordinator {
	if cfg.SentimentBatchSize <= 0 {
		cfg.SentimentBatchSize = DefaultSentimentBatchSize
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 20
	}
	if cfg.ItemDelay <= 0 {
		cfg.ItemDelay = DefaultItemDelay
	}
	if cfg.TargetDelay <= 0 {
		cfg.TargetDelay = DefaultTargetDelay
	}
	if cfg.MaxScrapeReviews <= 0 {
		cfg.MaxScrapeReviews = DefaultMaxScrapeReviews
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = crawler.SeedTargets
	}

	c := &IngestionCoordinator{
		catalog:   catalog,
		scraper:   scraper,
		scripts:   scripts,
		sentiment: sentiment,
		embedder:  embedder,
		index:     index,
		cfg:       cfg,
		sleep:     utils.Sleep,
		now:       time.Now,
		log:       logger.With("component", "ingestion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.normalizer == nil {
		c.normalizer = NewNormalizer(c.now)
	}
	return c
}

// RunAPISource ingests the first limit movies of the popular list with one
// page of reviews each.
func (c *IngestionCoordinator) RunAPISource(ctx context.Context, limit int) (models.StageReport, error) {
	if limit <= 0 {
		limit = DefaultAPILimit
	}
	report := c.startStage(models.SourceTMDb)
	log := c.log.With("stage", string(models.SourceTMDb))
	log.Info("api ingestion starting", "limit", limit)

	entries, err := c.catalog.PopularMovies(ctx, 1)
	if err != nil {
		log.Error("popular list failed", "error", err)
		return c.finishStage(report, fmt.Errorf("popular movies: %w", err))
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	for i, entry := range entries {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.ItemDelay); err != nil {
				return c.finishStage(report, err)
			}
		}

		movie, err := c.catalog.GetMovie(ctx, entry.ID)
		if err != nil {
			if ctx.Err() != nil {
				return c.finishStage(report, ctx.Err())
			}
			log.Warn("movie details failed", "tmdb_id", entry.ID, "error", err)
			report.ItemErrors++
			continue
		}
		reviews, err := c.catalog.GetReviews(ctx, entry.ID, movie.MovieID, 1)
		if err != nil {
			if ctx.Err() != nil {
				return c.finishStage(report, ctx.Err())
			}
			log.Warn("reviews failed", "tmdb_id", entry.ID, "error", err)
			report.ItemErrors++
			continue
		}
		if len(reviews) == 0 {
			log.Info("no reviews", "movie", movie.Title)
			continue
		}

		log.Info("processing movie", "movie", movie.Title, "reviews", len(reviews))
		items := make([]IngestItem, 0, len(reviews))
		for _, r := range reviews {
			items = append(items, IngestItem{Movie: *movie, Record: r})
		}
		report.Fetched += len(items)

		res, err := c.AnalyzeAndStore(ctx, items, true)
		addResult(&report, res)
		if err != nil {
			return c.finishStage(report, err)
		}
	}

	log.Info("api ingestion finished", "stored", report.Stored)
	return c.finishStage(report, nil)
}

// RunScrapeSource scrapes the first limit seed targets. The delay between
// targets keeps the scraper under the site's bot detection and must not be
// removed.
func (c *IngestionCoordinator) RunScrapeSource(ctx context.Context, limit int) (models.StageReport, error) {
	if limit <= 0 {
		limit = DefaultScrapeLimit
	}
	targets := c.cfg.Targets
	if len(targets) > limit {
		targets = targets[:limit]
	}
	report := c.startStage(models.SourceIMDb)
	log := c.log.With("stage", string(models.SourceIMDb))
	log.Info("scrape ingestion starting", "targets", len(targets))

	for i, t := range targets {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.TargetDelay); err != nil {
				return c.finishStage(report, err)
			}
		}

		log.Info("scraping", "title", t.Title, "imdb_id", t.IMDbID)
		scraped := c.scraper.FetchReviews(ctx, t.IMDbID, c.cfg.MaxScrapeReviews)
		if ctx.Err() != nil {
			return c.finishStage(report, ctx.Err())
		}
		if len(scraped) == 0 {
			continue
		}

		movie := models.Movie{
			MovieID:   models.MovieSlug(t.Title, t.Year),
			Title:     t.Title,
			Year:      t.Year,
			CreatedAt: c.now().UTC(),
		}
		items := make([]IngestItem, 0, len(scraped))
		for j, r := range scraped {
			items = append(items, IngestItem{Movie: movie, Record: scrapedToReview(t.IMDbID, movie.MovieID, j, r)})
		}
		report.Fetched += len(items)

		res, err := c.AnalyzeAndStore(ctx, items, true)
		addResult(&report, res)
		if err != nil {
			return c.finishStage(report, err)
		}
	}

	log.Info("scrape ingestion finished", "stored", report.Stored)
	return c.finishStage(report, nil)
}

func scrapedToReview(imdbID, movieID string, i int, r crawler.ScrapedReview) *models.IMDbReview {
	author := strings.TrimSpace(r.Author)
	if author == "" {
		author = strings.TrimSpace(r.Title)
	}
	if author == "" {
		author = "Anonymous"
	}
	return &models.IMDbReview{
		ReviewID:     fmt.Sprintf("%s-%d", imdbID, i),
		MovieID:      movieID,
		Author:       author,
		Rating:       r.Rating,
		Text:         r.Content,
		Date:         r.Date,
		HelpfulCount: r.HelpfulCount,
	}
}

// RunBulkText chunks every screenplay in the scripts directory and stores the
// chunks without sentiment.
func (c *IngestionCoordinator) RunBulkText(ctx context.Context) (models.StageReport, error) {
	report := c.startStage(models.SourceScript)
	log := c.log.With("stage", string(models.SourceScript))

	files, err := c.scripts.Scan()
	if err != nil {
		log.Error("script scan failed", "error", err)
		return c.finishStage(report, err)
	}
	if len(files) == 0 {
		log.Warn("no script files found")
		return c.finishStage(report, nil)
	}
	log.Info("script ingestion starting", "files", len(files))

	for _, path := range files {
		doc, err := c.scripts.Load(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return c.finishStage(report, ctx.Err())
			}
			log.Warn("script skipped", "file", path, "error", err)
			report.ItemErrors++
			continue
		}

		items := make([]IngestItem, 0, len(doc.Chunks))
		for _, chunk := range doc.Chunks {
			items = append(items, IngestItem{Movie: doc.Movie, Record: chunk})
		}
		report.Fetched += len(items)

		res, err := c.AnalyzeAndStore(ctx, items, false)
		addResult(&report, res)
		if err != nil {
			return c.finishStage(report, err)
		}
	}

	log.Info("script ingestion finished", "stored", report.Stored)
	return c.finishStage(report, nil)
}

// AnalyzeAndStore classifies (when analyze is set), normalizes, embeds and
// writes items. Documents without an embedding are dropped and counted. The
// error is non-nil for a fail-closed classifier error, an index write error or
// a cancelled ctx.
func (c *IngestionCoordinator) AnalyzeAndStore(ctx context.Context, items []IngestItem, analyze bool) (StoreResult, error) {
	var res StoreResult
	if len(items) == 0 {
		return res, nil
	}

	if analyze {
		texts := make([]string, len(items))
		for i, it := range items {
			texts[i] = it.Record.Body()
		}
		sentiments, fallbacks, err := c.sentiment.ClassifyBatch(ctx, texts, c.cfg.SentimentBatchSize)
		res.SentimentFallback = fallbacks
		if err != nil {
			return res, fmt.Errorf("sentiment: %w", err)
		}
		for i, it := range items {
			if i < len(sentiments) {
				it.Record.AttachSentiment(sentiments[i])
			}
		}
	}

	docs := make([]models.UnifiedDocument, 0, len(items))
	for _, it := range items {
		doc, err := c.normalizer.Normalize(it.Record, it.Movie)
		if err != nil {
			c.log.Warn("record skipped", "record_id", it.Record.RecordID(), "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	res.Documents = len(docs)
	if len(docs) == 0 {
		return res, nil
	}
	source := string(docs[0].Source)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := c.embedder.EmbedDocuments(ctx, texts, c.cfg.EmbedBatchSize)
	if err != nil {
		return res, fmt.Errorf("embedding: %w", err)
	}

	var (
		ids   []string
		keep  []string
		vecs  [][]float32
		metas []map[string]any
	)
	for i, d := range docs {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			res.EmbeddingFailures++
			continue
		}
		ids = append(ids, d.ID)
		keep = append(keep, d.Text)
		vecs = append(vecs, vectors[i])
		metas = append(metas, d.IndexMetadata())
	}

	if res.EmbeddingFailures > 0 {
		c.log.Warn("documents dropped without embedding", "source", source, "dropped", res.EmbeddingFailures)
		c.metrics.RecordEmbeddingFailures(source, res.EmbeddingFailures)
	}
	if len(ids) == 0 {
		return res, nil
	}

	if _, err := c.index.Add(ctx, keep, vecs, metas, ids); err != nil {
		return res, fmt.Errorf("index write: %w", err)
	}
	res.Stored = len(ids)
	c.metrics.RecordDocumentsStored(source, res.Stored)
	c.log.Info("documents stored", "source", source, "stored", res.Stored)
	return res, nil
}

// Run executes the pipelines selected by target. Stages run in order and one
// failing stage does not stop the next; a cancelled ctx does.
func (c *IngestionCoordinator) Run(ctx context.Context, target models.IngestTarget, limit int) []models.StageReport {
	switch target {
	case models.TargetTMDb:
		r, _ := c.RunAPISource(ctx, limit)
		return []models.StageReport{r}
	case models.TargetIMDb:
		r, _ := c.RunScrapeSource(ctx, limit)
		return []models.StageReport{r}
	case models.TargetScript:
		r, _ := c.RunBulkText(ctx)
		return []models.StageReport{r}
	default:
		return c.RunAll(ctx, Limits{API: limit, Scrape: limit})
	}
}

// RunAll runs API, scrape and bulk text ingestion one after another.
func (c *IngestionCoordinator) RunAll(ctx context.Context, limits Limits) []models.StageReport {
	stages := []func(context.Context) (models.StageReport, error){
		func(ctx context.Context) (models.StageReport, error) { return c.RunAPISource(ctx, limits.API) },
		func(ctx context.Context) (models.StageReport, error) { return c.RunScrapeSource(ctx, limits.Scrape) },
		c.RunBulkText,
	}

	reports := make([]models.StageReport, 0, len(stages))
	for _, run := range stages {
		report, err := c.runIsolated(ctx, run)
		reports = append(reports, report)
		if err != nil && ctx.Err() != nil {
			c.log.Warn("ingestion cancelled", "completed_stages", len(reports))
			break
		}
	}
	return reports
}

// runIsolated turns a panicking stage into a failed report.
func (c *IngestionCoordinator) runIsolated(ctx context.Context, run func(context.Context) (models.StageReport, error)) (report models.StageReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("ingestion stage panicked", "panic", r)
			err = fmt.Errorf("stage panic: %v", r)
			report.Error = err.Error()
		}
	}()
	return run(ctx)
}

// Close releases the sentiment client's pooled connections.
func (c *IngestionCoordinator) Close() {
	if c.sentiment != nil {
		c.sentiment.Close()
	}
}

func (c *IngestionCoordinator) startStage(source models.SourceKind) models.StageReport {
	return models.StageReport{Source: source, StartedAt: c.now().UTC()}
}

func (c *IngestionCoordinator) finishStage(report models.StageReport, err error) (models.StageReport, error) {
	report.DurationMs = c.now().Sub(report.StartedAt).Milliseconds()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Error = "cancelled: " + err.Error()
		} else {
			report.Error = err.Error()
		}
		c.log.Error("ingestion stage failed", "source", string(report.Source), "error", err)
	}
	return report, err
}

func addResult(report *models.StageReport, res StoreResult) {
	report.Stored += res.Stored
	report.EmbeddingFailures += res.EmbeddingFailures
	report.SentimentFallback += res.SentimentFallback
}
