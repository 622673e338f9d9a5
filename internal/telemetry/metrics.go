package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	DocumentsStored     metric.Int64Counter
	EmbeddingFailures   metric.Int64Counter
	SentimentFallbacks  metric.Int64Counter
	DimensionMismatches metric.Int64Counter
	QueryDuration       metric.Float64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("cinemind")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	documentsStored, err := meter.Int64Counter(
		"ingest.documents.stored",
		metric.WithDescription("Documents written to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	embeddingFailures, err := meter.Int64Counter(
		"ingest.embedding.failures",
		metric.WithDescription("Documents dropped because no embedding was produced"),
	)
	if err != nil {
		return nil, err
	}

	sentimentFallbacks, err := meter.Int64Counter(
		"ingest.sentiment.fallbacks",
		metric.WithDescription("Texts given a neutral sentiment after a classifier failure"),
	)
	if err != nil {
		return nil, err
	}

	dimensionMismatches, err := meter.Int64Counter(
		"vectorstore.dimension.mismatches",
		metric.WithDescription("Vectors written with an unexpected dimension"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"rag.query.duration",
		metric.WithDescription("End-to-end question answering duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		CircuitBreakerState: circuitBreakerState,
		DocumentsStored:     documentsStored,
		EmbeddingFailures:   embeddingFailures,
		SentimentFallbacks:  sentimentFallbacks,
		DimensionMismatches: dimensionMismatches,
		QueryDuration:       queryDuration,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	if m == nil {
		return
	}
	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(
		attribute.String("gemini.model", model),
	))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDocumentsStored(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DocumentsStored.Add(context.Background(), int64(n), metric.WithAttributes(
		attribute.String("source", source),
	))
}

func (m *Metrics) RecordEmbeddingFailures(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EmbeddingFailures.Add(context.Background(), int64(n), metric.WithAttributes(
		attribute.String("source", source),
	))
}

func (m *Metrics) RecordSentimentFallbacks(n int) {
	if m == nil || n == 0 {
		return
	}
	m.SentimentFallbacks.Add(context.Background(), int64(n))
}

func (m *Metrics) RecordDimensionMismatch(collection string, got, want int) {
	if m == nil {
		return
	}
	m.DimensionMismatches.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("got", got),
		attribute.Int("want", want),
	))
}

// RecordQuery records a question-answering round trip.
func (m *Metrics) RecordQuery(duration float64, documents int) {
	if m == nil {
		return
	}
	m.QueryDuration.Record(context.Background(), duration, metric.WithAttributes(
		attribute.Bool("rag.has_context", documents > 0),
	))
}
