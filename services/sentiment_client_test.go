package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cinemind/internal/config"
	"cinemind/models"
	"cinemind/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct{ delays []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

// echoSentimentServer answers every text with the given label.
func echoSentimentServer(t *testing.T, label string, extra int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/api/v1/analyze-batch", r.URL.Path)
		var req sentimentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		results := make([]sentimentItem, 0, len(req.Texts)+extra)
		for i := 0; i < len(req.Texts)+extra; i++ {
			results = append(results, sentimentItem{Sentiment: label, Confidence: 0.9})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClassifyBatchChunksAndMapsLabels(t *testing.T) {
	srv, hits := echoSentimentServer(t, "Pozitif", 0)
	c := NewSentimentClient(srv.URL, time.Second)
	defer c.Close()

	out, fallbacks, err := c.ClassifyBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, fallbacks)
	require.Len(t, out, 5)
	for _, r := range out {
		assert.Equal(t, models.SentimentPositive, r.Label)
		assert.InDelta(t, 0.9, r.Score, 1e-9)
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestClassifyBatchTruncatesLongResponse(t *testing.T) {
	srv, _ := echoSentimentServer(t, "negative", 2)
	c := NewSentimentClient(srv.URL, time.Second)

	out, _, err := c.ClassifyBatch(context.Background(), []string{"a", "b"}, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, models.SentimentNegative, out[0].Label)
}

func TestClassifyBatchPadsShortResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"sentiment":"Positive","confidence":0.8}]}`))
	}))
	defer srv.Close()
	c := NewSentimentClient(srv.URL, time.Second)

	out, fallbacks, err := c.ClassifyBatch(context.Background(), []string{"a", "b", "c"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, fallbacks)
	assert.Equal(t, []models.SentimentResult{
		{Label: models.SentimentPositive, Score: 0.8},
		models.NeutralSentiment(),
		models.NeutralSentiment(),
	}, out)
}

func TestClassifyBatchRejectsBatchSizeBeforeNetwork(t *testing.T) {
	srv, hits := echoSentimentServer(t, "Positive", 0)
	c := NewSentimentClient(srv.URL, time.Second)

	for _, size := range []int{0, -1, 101} {
		_, _, err := c.ClassifyBatch(context.Background(), []string{"a"}, size)
		assert.ErrorIs(t, err, ErrInvalidSentimentBatch)
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(hits))
}

func TestClassifyBatchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results":[{"sentiment":"Neutral","confidence":0.5}]}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := NewSentimentClient(srv.URL, time.Second, WithRetrySchedule(utils.DefaultBackoff(), rec.sleep))

	out, fallbacks, err := c.ClassifyBatch(context.Background(), []string{"a"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, fallbacks)
	assert.Equal(t, models.SentimentNeutral, out[0].Label)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestClassifyBatchClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := NewSentimentClient(srv.URL, time.Second, WithRetrySchedule(utils.DefaultBackoff(), rec.sleep))

	out, fallbacks, err := c.ClassifyBatch(context.Background(), []string{"a", "b"}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, fallbacks)
	assert.Equal(t, []models.SentimentResult{models.NeutralSentiment(), models.NeutralSentiment()}, out)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Empty(t, rec.delays)
}

func TestClassifyBatchFailClosedReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := NewSentimentClient(srv.URL, time.Second,
		WithFailurePolicy(FailClosed),
		WithRetrySchedule(utils.DefaultBackoff(), rec.sleep))

	_, _, err := c.ClassifyBatch(context.Background(), []string{"a"}, 1)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Len(t, rec.delays, 2)
}

func TestClassifyBatchMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"sentiment":"Positive"}}`))
	}))
	defer srv.Close()

	closed := NewSentimentClient(srv.URL, time.Second, WithFailurePolicy(FailClosed))
	_, _, err := closed.ClassifyBatch(context.Background(), []string{"a"}, 1)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	open := NewSentimentClient(srv.URL, time.Second)
	out, fallbacks, err := open.ClassifyBatch(context.Background(), []string{"a"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, fallbacks)
	assert.Equal(t, models.NeutralSentiment(), out[0])
}

func TestClassifyBatchUnreachableServiceFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &sleepRecorder{}
	c := NewSentimentClient(url, time.Second, WithRetrySchedule(utils.DefaultBackoff(), rec.sleep))

	out, fallbacks, err := c.ClassifyBatch(context.Background(), []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, fallbacks)
	assert.Len(t, out, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}, rec.delays)
}

func TestClassifyBatchCancelledContextPropagates(t *testing.T) {
	srv, _ := echoSentimentServer(t, "Positive", 0)
	c := NewSentimentClient(srv.URL, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.ClassifyBatch(ctx, []string{"a"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSentimentHealth(t *testing.T) {
	srv, _ := echoSentimentServer(t, "Positive", 0)
	assert.True(t, NewSentimentClient(srv.URL, time.Second).Health(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	assert.False(t, NewSentimentClient(url, time.Second).Health(context.Background()))
}

func TestWithSentimentClientAppliesConfig(t *testing.T) {
	srv, _ := echoSentimentServer(t, "Negative", 0)
	cfg := &config.Config{SentimentServiceURL: srv.URL, SentimentTimeout: time.Second, SentimentFailOpen: false}

	err := WithSentimentClient(cfg, func(c *SentimentClient) error {
		assert.Equal(t, FailClosed, c.Policy())
		got, degraded, err := c.ClassifyBatch(context.Background(), []string{"dull"}, 1)
		require.NoError(t, err)
		assert.Zero(t, degraded)
		assert.Equal(t, "Negative", got[0].Label)
		return errors.New("done")
	})
	assert.EqualError(t, err, "done")
}

func TestClassifyBatchFailOpenOnlyNeutralizesFailingChunk(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var req sentimentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Texts[0] == "c" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		results := make([]sentimentItem, len(req.Texts))
		for i := range results {
			results[i] = sentimentItem{Sentiment: "Positive", Confidence: 0.8}
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := NewSentimentClient(srv.URL, time.Second, WithRetrySchedule(utils.DefaultBackoff(), rec.sleep))

	out, fallbacks, err := c.ClassifyBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, fallbacks)
	labels := make([]string, len(out))
	for i, r := range out {
		labels[i] = r.Label
	}
	assert.Equal(t, []string{"Positive", "Positive", "Neutral", "Neutral", "Positive"}, labels)
	assert.Zero(t, out[2].Score)
	assert.EqualValues(t, 5, atomic.LoadInt32(&hits))
}
