package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cinemind/internal/logger"
	"cinemind/models"
	"cinemind/utils"
)

// TaskType tells the provider how the vector will be used.
type TaskType string

const (
	TaskRetrievalQuery    TaskType = "retrieval_query"
	TaskRetrievalDocument TaskType = "retrieval_document"
)

const (
	DefaultEmbeddingModel = "text-embedding-004"
	MaxEmbedBatchSize     = 100
	DefaultEmbedBatchSize = 20
	DefaultBatchDelay     = 500 * time.Millisecond
)

var (
	ErrEmptyText        = errors.New("text is empty")
	ErrInvalidBatchSize = errors.New("batch size out of range")
)

// RawKind tags the shape of a provider response.
type RawKind int

const (
	// RawSingle is one unwrapped vector.
	RawSingle RawKind = iota + 1
	// RawBatch is a list of vectors.
	RawBatch
)

// RawEmbedding is the provider response before normalization.
type RawEmbedding struct {
	Kind   RawKind
	Single []float32
	Batch  [][]float32
}

func SingleVector(v []float32) RawEmbedding { return RawEmbedding{Kind: RawSingle, Single: v} }

func VectorList(vs [][]float32) RawEmbedding { return RawEmbedding{Kind: RawBatch, Batch: vs} }

// Unwrap normalizes a provider response into one entry per input text, nil
// marking a failed position.
//
//	batch  kind    result
//	1      single  [single]
//	1      batch   [batch[0]] if len(batch)==1, else [nil]
//	n>1    batch   batch if len(batch)==n, else n x nil
//	n>1    single  n x nil
func Unwrap(batchSize int, raw RawEmbedding) [][]float32 {
	if batchSize <= 0 {
		return nil
	}
	out := make([][]float32, batchSize)

	switch raw.Kind {
	case RawSingle:
		if batchSize == 1 && len(raw.Single) > 0 {
			out[0] = raw.Single
		}
	case RawBatch:
		if len(raw.Batch) != batchSize {
			return out
		}
		for i, v := range raw.Batch {
			if len(v) > 0 {
				out[i] = v
			}
		}
	}
	return out
}

// EmbeddingProvider is the external embedding service.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string, task TaskType) (RawEmbedding, error)
	Close() error
}

// QueryCache stores query vectors between requests.
type QueryCache interface {
	GetVector(ctx context.Context, key string) ([]float32, bool)
	SetVector(ctx context.Context, key string, vec []float32)
}

type EmbeddingClientConfig struct {
	Model      string
	BatchDelay time.Duration
	Dimensions int
}

type EmbeddingOption func(*EmbeddingClient)

// WithQueryCache enables caching of query vectors.
func WithQueryCache(c QueryCache) EmbeddingOption {
	return func(ec *EmbeddingClient) { ec.cache = c }
}

// WithSleep replaces the inter-batch wait.
func WithSleep(fn utils.SleepFunc) EmbeddingOption {
	return func(ec *EmbeddingClient) { ec.sleep = fn }
}

// EmbeddingClient turns text into fixed-size vectors.
type EmbeddingClient struct {
	provider   EmbeddingProvider
	cache      QueryCache
	model      string
	batchDelay time.Duration
	dims       int
	sleep      utils.SleepFunc
	log        *slog.Logger
}

func NewEmbeddingClient(provider EmbeddingProvider, cfg EmbeddingClientConfig, opts ...EmbeddingOption) *EmbeddingClient {
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = models.EmbeddingDimensions
	}
	c := &EmbeddingClient{
		provider:   provider,
		model:      cfg.Model,
		batchDelay: cfg.BatchDelay,
		dims:       cfg.Dimensions,
		sleep:      utils.Sleep,
		log:        logger.With("component", "embeddings"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EmbeddingClient) Dimensions() int { return c.dims }

func (c *EmbeddingClient) Model() string { return c.model }

// EmbedQuery embeds a search query. Blank text is rejected without a
// provider call.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		c.log.Warn("refusing to embed empty query")
		return nil, ErrEmptyText
	}

	key := utils.HashKey(c.model, string(TaskRetrievalQuery), text)
	if c.cache != nil {
		if vec, ok := c.cache.GetVector(ctx, key); ok {
			return vec, nil
		}
	}

	raw, err := c.provider.Embed(ctx, []string{text}, TaskRetrievalQuery)
	if err != nil {
		c.log.Error("query embedding failed", "error", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := Unwrap(1, raw)[0]
	if vec == nil {
		c.log.Error("query embedding returned no vector")
		return nil, fmt.Errorf("embed query: provider returned no vector")
	}
	c.checkDimensions(vec)

	if c.cache != nil {
		c.cache.SetVector(ctx, key, vec)
	}
	return vec, nil
}

// EmbedDocuments embeds texts in batches. The result is aligned with texts;
// positions whose batch failed are nil. The returned error is non-nil only for
// an invalid batch size or a cancelled context.
func (c *EmbeddingClient) EmbedDocuments(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize < 1 || batchSize > MaxEmbedBatchSize {
		return nil, fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidBatchSize, batchSize, MaxEmbedBatchSize)
	}
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	total := (len(texts) + batchSize - 1) / batchSize
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchNo := start/batchSize + 1

		delay := c.batchDelay
		raw, err := c.provider.Embed(ctx, texts[start:end], TaskRetrievalDocument)
		if err != nil {
			c.log.Error("document batch embedding failed",
				"batch", batchNo, "batches", total, "size", end-start, "error", err)
			delay *= 2
		} else {
			vecs := Unwrap(end-start, raw)
			missing := 0
			for i, v := range vecs {
				if v == nil {
					missing++
					continue
				}
				c.checkDimensions(v)
				out[start+i] = v
			}
			if missing > 0 {
				c.log.Warn("provider response did not match batch",
					"batch", batchNo, "size", end-start, "missing", missing)
			}
		}

		if end < len(texts) {
			if err := c.sleep(ctx, delay); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func (c *EmbeddingClient) checkDimensions(vec []float32) {
	if len(vec) != c.dims {
		c.log.Warn("embedding dimension mismatch", "got", len(vec), "want", c.dims)
	}
}

func (c *EmbeddingClient) Close() error {
	if c.provider != nil {
		return c.provider.Close()
	}
	return nil
}
