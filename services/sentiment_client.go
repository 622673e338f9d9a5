package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"cinemind/internal/config"
	"cinemind/internal/logger"
	"cinemind/internal/telemetry"
	"cinemind/models"
	"cinemind/utils"
)

const (
	MaxSentimentBatchSize     = 100
	DefaultSentimentBatchSize = 32
	defaultSentimentURL       = "http://localhost:8001"
)

var (
	ErrMalformedResponse     = errors.New("malformed sentiment response")
	ErrInvalidSentimentBatch = errors.New("sentiment batch size out of range")
)

// FailurePolicy decides what a failed chunk turns into.
type FailurePolicy int

const (
	// FailOpen replaces a failed chunk with neutral results.
	FailOpen FailurePolicy = iota
	// FailClosed returns the chunk error to the caller.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail-closed"
	}
	return "fail-open"
}

// StatusError is a non-2xx answer from the sentiment service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sentiment service returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is a server-side failure.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

type sentimentRequest struct {
	Texts []string `json:"texts"`
}

type sentimentItem struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// SentimentClient talks to the external batch sentiment classifier.
type SentimentClient struct {
	httpClient *http.Client
	baseURL    string
	policy     FailurePolicy
	backoff    utils.Backoff
	sleep      utils.SleepFunc
	metrics    *telemetry.Metrics
	log        *slog.Logger
}

type SentimentOption func(*SentimentClient)

func WithFailurePolicy(p FailurePolicy) SentimentOption {
	return func(c *SentimentClient) { c.policy = p }
}

// WithRetrySchedule overrides the backoff and the wait between attempts.
func WithRetrySchedule(b utils.Backoff, sleep utils.SleepFunc) SentimentOption {
	return func(c *SentimentClient) {
		c.backoff = b
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithSentimentMetrics(m *telemetry.Metrics) SentimentOption {
	return func(c *SentimentClient) { c.metrics = m }
}

// NewSentimentClient creates a client with a pooled connection.
func NewSentimentClient(baseURL string, timeout time.Duration, opts ...SentimentOption) *SentimentClient {
	if baseURL == "" {
		baseURL = defaultSentimentURL
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	c := &SentimentClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  FailOpen,
		backoff: utils.DefaultBackoff(),
		sleep:   utils.Sleep,
		log:     logger.With("component", "sentiment_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSentimentClientFromConfig applies SENTIMENT_* settings.
func NewSentimentClientFromConfig(cfg *config.Config, opts ...SentimentOption) *SentimentClient {
	policy := FailOpen
	if !cfg.SentimentFailOpen {
		policy = FailClosed
	}
	opts = append([]SentimentOption{WithFailurePolicy(policy)}, opts...)
	return NewSentimentClient(cfg.SentimentServiceURL, cfg.SentimentTimeout, opts...)
}

// WithSentimentClient runs fn with a client built from cfg and always closes it.
func WithSentimentClient(cfg *config.Config, fn func(*SentimentClient) error) error {
	c := NewSentimentClientFromConfig(cfg)
	defer c.Close()
	return fn(c)
}

func (c *SentimentClient) Policy() FailurePolicy { return c.policy }

// Health probes GET /health with a short timeout.
func (c *SentimentClient) Health(ctx context.Context) bool {
	ctx, cancel := utils.WithProbeTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("sentiment service unreachable", "url", c.baseURL, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return resp.StatusCode == http.StatusOK
}

// ClassifyBatch classifies texts in chunks of batchSize. The result is aligned
// with texts. The int is how many texts were given a neutral result because
// their chunk failed. Under FailClosed the first chunk failure is returned.
// A cancelled ctx is always returned as an error.
func (c *SentimentClient) ClassifyBatch(ctx context.Context, texts []string, batchSize int) ([]models.SentimentResult, int, error) {
	if batchSize < 1 || batchSize > MaxSentimentBatchSize {
		return nil, 0, fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidSentimentBatch, batchSize, MaxSentimentBatchSize)
	}
	if len(texts) == 0 {
		return []models.SentimentResult{}, 0, nil
	}

	c.log.Info("classifying texts", "total", len(texts), "batch_size", batchSize)
	out := make([]models.SentimentResult, 0, len(texts))
	fallbacks := 0

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		results, err := c.sendWithRetry(ctx, chunk)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fallbacks, ctxErr
			}
			if c.policy == FailClosed {
				c.log.Error("sentiment chunk failed", "from", start, "to", end, "error", err)
				return nil, fallbacks, fmt.Errorf("classify texts %d-%d: %w", start, end, err)
			}
			c.log.Warn("sentiment chunk failed, using neutral", "from", start, "to", end, "error", err)
			for range chunk {
				out = append(out, models.NeutralSentiment())
			}
			fallbacks += len(chunk)
			continue
		}

		out = append(out, alignResults(results, len(chunk), c.log)...)
		c.log.Debug("sentiment progress", "done", end, "total", len(texts))
	}

	c.metrics.RecordSentimentFallbacks(fallbacks)
	return out, fallbacks, nil
}

// alignResults pads a short response with neutral results or truncates a long
// one so that it lines up with the request.
func alignResults(items []sentimentItem, want int, log *slog.Logger) []models.SentimentResult {
	if len(items) != want {
		log.Error("sentiment response length mismatch", "sent", want, "received", len(items))
	}
	out := make([]models.SentimentResult, want)
	for i := range out {
		if i < len(items) {
			out[i] = models.NewSentimentResult(items[i].Sentiment, items[i].Confidence)
		} else {
			out[i] = models.NeutralSentiment()
		}
	}
	return out
}

func (c *SentimentClient) sendWithRetry(ctx context.Context, texts []string) ([]sentimentItem, error) {
	attempts := c.backoff.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		items, err := c.send(ctx, texts)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) || attempt == attempts-1 {
			break
		}
		delay := c.backoff.Delay(attempt)
		c.log.Warn("sentiment request failed, retrying", "attempt", attempt+1, "delay", delay.String(), "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *SentimentClient) send(ctx context.Context, texts []string) ([]sentimentItem, error) {
	body, err := json.Marshal(sentimentRequest{Texts: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/analyze-batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sentiment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
	}

	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var items []sentimentItem
	if len(envelope.Results) == 0 || envelope.Results[0] != '[' {
		return nil, fmt.Errorf("%w: results is not a list", ErrMalformedResponse)
	}
	if err := json.Unmarshal(envelope.Results, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return items, nil
}

// isRetryable is true for transport failures, timeouts and 5xx answers.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// Close releases pooled connections.
func (c *SentimentClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
