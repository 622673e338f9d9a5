package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("GET", "/api/v1/health", "200", 0.01)
		m.RecordDocumentsStored("tmdb", 3)
		m.RecordEmbeddingFailures("imdb", 1)
		m.RecordSentimentFallbacks(2)
		m.RecordDimensionMismatch("cinemind_store", 3, 768)
		m.RecordCircuitBreakerState("GeminiEmbed", "open")
		m.RecordQuery(0.5, 0)
	})
}

func TestInitMetricsWithGlobalMeter(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordDocumentsStored("script", 10)
		m.RecordQuery(0.2, 4)
	})
}

func TestTracerSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", TracerConfig{Environment: "debug"}.sampler().Description())
	assert.Equal(t, "AlwaysOnSampler", TracerConfig{SampleRatio: 1}.sampler().Description())
	assert.Equal(t, "AlwaysOffSampler", TracerConfig{Environment: "release"}.sampler().Description())
	assert.Contains(t, TracerConfig{SampleRatio: 0.1}.sampler().Description(), "TraceIDRatioBased{0.1}")
}
