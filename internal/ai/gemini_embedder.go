package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// GeminiEmbedder calls the Google embedding API. One text goes through
// EmbedContent and yields a RawSingle; several go through BatchEmbedContents
// and yield a RawBatch.
type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
}

var _ EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, opts ...ClientOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GeminiEmbedder{
		client:  client,
		model:   model,
		breaker: newBreaker("GeminiEmbed", o.observer),
	}, nil
}

func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string, task TaskType) (RawEmbedding, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.String("gemini.task_type", string(task)),
		attribute.Int("gemini.batch_size", len(texts)),
	)

	if len(texts) == 0 {
		return VectorList(nil), nil
	}

	em := g.client.EmbeddingModel(g.model)
	em.TaskType = genaiTaskType(task)

	result, err := g.breaker.Execute(func() (interface{}, error) {
		if len(texts) == 1 {
			resp, err := em.EmbedContent(ctx, genai.Text(texts[0]))
			if err != nil {
				return nil, err
			}
			if resp.Embedding == nil {
				return nil, errors.New("no embedding returned")
			}
			return SingleVector(resp.Embedding.Values), nil
		}

		batch := em.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		vecs := make([][]float32, 0, len(resp.Embeddings))
		for _, e := range resp.Embeddings {
			if e == nil {
				vecs = append(vecs, nil)
				continue
			}
			vecs = append(vecs, e.Values)
		}
		return VectorList(vecs), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		return RawEmbedding{}, err
	}
	return result.(RawEmbedding), nil
}

func genaiTaskType(task TaskType) genai.TaskType {
	switch task {
	case TaskRetrievalQuery:
		return genai.TaskTypeRetrievalQuery
	case TaskRetrievalDocument:
		return genai.TaskTypeRetrievalDocument
	default:
		return genai.TaskTypeUnspecified
	}
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
