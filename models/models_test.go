package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovieSlug(t *testing.T) {
	assert.Equal(t, "the-matrix-1999", MovieSlug("The Matrix", 1999))
	assert.Equal(t, "star-wars-episode-iv-1977", MovieSlug("Star Wars: Episode IV", 1977))
	assert.Equal(t, "inception", MovieSlug("  Inception ", 0))
}

func TestParseSourceKind(t *testing.T) {
	k, ok := ParseSourceKind("SCRIPT")
	assert.True(t, ok)
	assert.Equal(t, SourceScript, k)

	k, ok = ParseSourceKind("letterboxd")
	assert.False(t, ok)
	assert.Equal(t, SourceTMDb, k)

	k, ok = ParseSourceKind("")
	assert.False(t, ok)
	assert.Equal(t, SourceTMDb, k)
}

func TestNewSentimentResult(t *testing.T) {
	assert.Equal(t, SentimentResult{Label: SentimentPositive, Score: 1}, NewSentimentResult("Pozitif", 1.7))
	assert.Equal(t, SentimentResult{Label: SentimentNeutral, Score: 0}, NewSentimentResult("Nötr", -0.2))
	assert.Equal(t, SentimentResult{Label: "Mixed", Score: 0.4}, NewSentimentResult("Mixed", 0.4))
	assert.Equal(t, SentimentNeutral, NewSentimentResult("", 0.5).Label)
}

func TestScriptChunkValidate(t *testing.T) {
	require.NoError(t, (&ScriptChunk{ChunkID: "c", Index: 0, Total: 1}).Validate())
	assert.Error(t, (&ScriptChunk{ChunkID: "c", Index: 1, Total: 1}).Validate())
	assert.Error(t, (&ScriptChunk{ChunkID: "c", Index: -1, Total: 3}).Validate())
	assert.Error(t, (&ScriptChunk{ChunkID: "c", Index: 0, Total: 0}).Validate())
}

func TestScriptChunkIgnoresSentiment(t *testing.T) {
	var rec SourceRecord = &ScriptChunk{ChunkID: "c"}
	rec.AttachSentiment(NewSentimentResult("Positive", 0.9))
	assert.Equal(t, SourceScript, rec.Source())
}

func TestIndexMetadataDropsNil(t *testing.T) {
	var missing *float64
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := UnifiedDocument{
		ID:        "tmdb-1",
		Movie:     Movie{MovieID: "the-matrix-1999", Title: "The Matrix", Year: 1999},
		Source:    SourceTMDb,
		Metadata:  map[string]any{"author": "neo", "rating": missing, "nothing": nil},
		Sentiment: &SentimentResult{Label: SentimentPositive, Score: 0.8},
		CreatedAt: created,
	}

	meta := doc.IndexMetadata()
	assert.NotContains(t, meta, "rating")
	assert.NotContains(t, meta, "nothing")
	assert.Equal(t, "neo", meta["author"])
	assert.Equal(t, "the-matrix-1999", meta["movie_id"])
	assert.Equal(t, "The Matrix", meta["movie_title"])
	assert.Equal(t, "tmdb", meta["source"])
	assert.Equal(t, "2024-05-01T12:00:00Z", meta["created_at"])
	assert.Equal(t, 1999, meta["movie_year"])
	assert.Equal(t, SentimentPositive, meta["sentiment_label"])
	assert.Equal(t, 0.8, meta["sentiment_score"])
	for k, v := range meta {
		assert.NotNil(t, v, k)
	}
}

func TestDeriveStatus(t *testing.T) {
	ok := StageReport{Source: SourceTMDb}
	bad := StageReport{Source: SourceIMDb, Error: "boom"}

	assert.Equal(t, JobSucceeded, DeriveStatus([]StageReport{ok, ok}))
	assert.Equal(t, JobFailedPartial, DeriveStatus([]StageReport{ok, bad}))
	assert.Equal(t, JobFailed, DeriveStatus([]StageReport{bad}))
	assert.True(t, JobFailedPartial.Terminal())
	assert.False(t, JobRunning.Terminal())
}
