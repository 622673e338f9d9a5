package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cinemind/internal/logger"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

const DefaultGenerationModel = "gemini-2.5-flash"

// FallbackAnswer is returned while the circuit breaker is open.
const FallbackAnswer = "I'm experiencing high demand right now. Please try again in a moment."

const systemPrompt = `You are CineMind AI, a film expert assistant.

RULES:
1. Only use information from the provided sources.
2. If the sources do not cover the question, say you don't know.
3. Warn the reader before revealing plot spoilers.
4. When quoting, name the source (for example "According to the script...").`

// BreakerObserver is notified of circuit breaker transitions.
type BreakerObserver func(service, state string)

type ClientOption func(*clientOptions)

type clientOptions struct {
	observer BreakerObserver
}

// WithBreakerObserver registers a callback for breaker state changes.
func WithBreakerObserver(fn BreakerObserver) ClientOption {
	return func(o *clientOptions) { o.observer = fn }
}

func newBreaker(name string, observer BreakerObserver) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if observer != nil {
				observer(name, to.String())
			}
		},
	})
}

// GeminiClient generates answers from an assembled context block.
type GeminiClient struct {
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	model        string
	tier         string
}

func NewGeminiClient(ctx context.Context, apiKey, model, tier string, opts ...ClientOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for generation")
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if model == "" {
		model = DefaultGenerationModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	return &GeminiClient{
		breaker:      newBreaker("GeminiGenerate", o.observer),
		rateLimiter:  rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(1, limits.RPM/10)),
		tokenCounter: NewTokenCounter(limits),
		client:       client,
		model:        model,
		tier:         tier,
	}, nil
}

// Generate answers question using only contextBlock.
func (gc *GeminiClient) Generate(ctx context.Context, question, contextBlock string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	prompt := BuildPrompt(question, contextBlock)
	estimatedTokens := EstimateTokens(systemPrompt) + EstimateTokens(prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", gc.model),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", errors.New("rate limit exceeded: wait before retry")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0)
		model.SetMaxOutputTokens(2048)
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))

		return responseText(resp), nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return FallbackAnswer, nil
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return result.(string), nil
}

// EstimateTokens is the coarse 4-characters-per-token estimate.
func EstimateTokens(text string) int {
	return len(text) / 4
}

func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	estimated := EstimateTokens(responseText(resp))
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

// BuildPrompt lays out the sources and the question for the model.
func BuildPrompt(question, contextBlock string) string {
	return fmt.Sprintf("SOURCES:\n%s\n\nUSER QUESTION:\n%s\n\nANSWER:", contextBlock, question)
}

func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
