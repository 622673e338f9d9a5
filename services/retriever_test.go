package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cinemind/internal/vectorstore"
	"cinemind/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueryEmbedder struct {
	vec []float32
	err error
}

func (f fakeQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

type recordingSearcher struct {
	hits    []vectorstore.Hit
	calls   int
	filters []map[string]any
}

func (r *recordingSearcher) Search(_ context.Context, _ []float32, _ int, filter map[string]any) []vectorstore.Hit {
	r.calls++
	r.filters = append(r.filters, filter)
	return r.hits
}

func TestRerankOrdersEqualDistanceBySourceWeight(t *testing.T) {
	docs := []models.RetrievedDocument{
		{ID: "web", Source: models.SourceKind("web"), Distance: 0.4},
		{ID: "tmdb", Source: models.SourceTMDb, Distance: 0.4},
		{ID: "imdb", Source: models.SourceIMDb, Distance: 0.4},
		{ID: "script", Source: models.SourceScript, Distance: 0.4},
	}
	Rerank(docs)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"script", "imdb", "tmdb", "web"}, ids)
	assert.InDelta(t, 0.4, docs[0].WeightedScore, 1e-9)
	assert.InDelta(t, 0.4/0.9, docs[1].WeightedScore, 1e-9)
	assert.InDelta(t, 0.5, docs[2].WeightedScore, 1e-9)
	assert.InDelta(t, 0.8, docs[3].WeightedScore, 1e-9)
}

func TestRerankIsStableAndKeepsFormula(t *testing.T) {
	docs := []models.RetrievedDocument{
		{ID: "first", Source: models.SourceTMDb, Distance: 0.2},
		{ID: "second", Source: models.SourceTMDb, Distance: 0.2},
		{ID: "review", Source: models.SourceTMDb, Distance: 0.45},
		{ID: "script", Source: models.SourceScript, Distance: 0.5},
	}
	Rerank(docs)

	assert.Equal(t, "first", docs[0].ID)
	assert.Equal(t, "second", docs[1].ID)
	// 0.5/1.0 beats 0.45/0.8
	assert.Equal(t, "script", docs[2].ID)
	assert.Equal(t, "review", docs[3].ID)
}

func TestSourceWeight(t *testing.T) {
	assert.Equal(t, 1.0, SourceWeight(models.SourceScript))
	assert.Equal(t, 0.9, SourceWeight(models.SourceIMDb))
	assert.Equal(t, 0.8, SourceWeight(models.SourceTMDb))
	assert.Equal(t, 0.5, SourceWeight("blog"))
}

func TestParseHitsDefaults(t *testing.T) {
	docs := ParseHits([]vectorstore.Hit{
		{ID: "a", Document: "text a", Distance: 0.1},
		{ID: "b", Document: "text b", Distance: 0.2, Metadata: map[string]any{"source": "netflix", "movie_title": "Heat"}},
		{ID: "c", Document: "text c", Distance: 0.3, Metadata: map[string]any{"source": "script", "movie_title": "Alien"}},
	})
	require.Len(t, docs, 3)

	assert.Equal(t, models.SourceTMDb, docs[0].Source)
	assert.Equal(t, "Unknown", docs[0].MovieTitle)
	assert.NotNil(t, docs[0].Metadata)
	assert.Equal(t, models.SourceTMDb, docs[1].Source)
	assert.Equal(t, "Heat", docs[1].MovieTitle)
	assert.Equal(t, models.SourceScript, docs[2].Source)
	assert.Equal(t, "text c", docs[2].Text)
}

func TestRetrieveEmbeddingFailureReturnsEmpty(t *testing.T) {
	searcher := &recordingSearcher{}
	r := NewRetriever(fakeQueryEmbedder{err: errors.New("quota")}, searcher)

	docs := r.Retrieve(context.Background(), "plot", 5, nil)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
	assert.Zero(t, searcher.calls)
}

func TestRetrievePassesSourceFilter(t *testing.T) {
	searcher := &recordingSearcher{}
	r := NewRetriever(fakeQueryEmbedder{vec: []float32{1, 0}}, searcher)

	script := models.SourceScript
	r.Retrieve(context.Background(), "plot", 5, &script)
	r.Retrieve(context.Background(), "plot", 5, nil)

	require.Len(t, searcher.filters, 2)
	assert.Equal(t, map[string]any{"source": "script"}, searcher.filters[0])
	assert.Nil(t, searcher.filters[1])
}

func TestRetrieveWithScriptFilterReturnsOnlyScripts(t *testing.T) {
	store, err := vectorstore.Open(t.TempDir(), "retrieve", vectorstore.WithDimensions(2))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = store.Add(ctx,
		[]string{"script scene", "tmdb review", "imdb review"},
		[][]float32{{1, 0}, {1, 0.1}, {0.9, 0.2}},
		[]map[string]any{
			{"source": "script", "movie_title": "The Matrix"},
			{"source": "tmdb", "movie_title": "The Matrix"},
			{"source": "imdb", "movie_title": "The Matrix"},
		},
		[]string{"script-1", "tmdb-1", "imdb-1"})
	require.NoError(t, err)

	r := NewRetriever(fakeQueryEmbedder{vec: []float32{1, 0}}, store)
	script := models.SourceScript
	docs := r.Retrieve(ctx, "plot", 5, &script)
	require.Len(t, docs, 1)
	assert.Equal(t, models.SourceScript, docs[0].Source)

	all := r.Retrieve(ctx, "plot", 5, nil)
	assert.Len(t, all, 3)
}

func TestContextBuilderStopsAtBudget(t *testing.T) {
	body := strings.Repeat("x", 4000)
	docs := []models.RetrievedDocument{
		{Source: models.SourceScript, MovieTitle: "One", Text: body},
		{Source: models.SourceIMDb, MovieTitle: "Two", Text: body},
		{Source: models.SourceTMDb, MovieTitle: "Three", Text: body},
		{Source: models.SourceTMDb, MovieTitle: "Four", Text: body},
	}

	out := NewContextBuilder(3000).Build(docs)
	assert.Equal(t, 3, strings.Count(out, "\n---\n"))
	assert.Less(t, strings.Index(out, "[SCRIPT] One"), strings.Index(out, "[IMDB REVIEW] Two"))
	assert.Less(t, strings.Index(out, "[IMDB REVIEW] Two"), strings.Index(out, "[TMDB REVIEW] Three"))
	assert.NotContains(t, out, "Four")
}

func TestContextBuilderStopsAtFirstOverflow(t *testing.T) {
	docs := []models.RetrievedDocument{
		{Source: models.SourceTMDb, MovieTitle: "Fits", Text: strings.Repeat("a", 400)},
		{Source: models.SourceTMDb, MovieTitle: "Huge", Text: strings.Repeat("b", 800)},
		{Source: models.SourceTMDb, MovieTitle: "Small", Text: "c"},
	}
	out := NewContextBuilder(150).Build(docs)
	assert.Contains(t, out, "Fits")
	assert.NotContains(t, out, "Huge")
	assert.NotContains(t, out, "Small")
}

func TestContextBuilderFormat(t *testing.T) {
	out := NewContextBuilder(0).Build([]models.RetrievedDocument{
		{Source: models.SourceScript, MovieTitle: "The Matrix", Text: "hello"},
		{Source: models.SourceTMDb, MovieTitle: "Inception", Text: "world"},
		{Source: "blog", MovieTitle: "Heat", Text: "!"},
	})
	assert.Equal(t, "[SCRIPT] The Matrix\n---\nhello\n[TMDB REVIEW] Inception\n---\nworld\n[DOCUMENT] Heat\n---\n!", out)
}

func TestContextBuilderSentinel(t *testing.T) {
	b := NewContextBuilder(10)
	assert.Equal(t, NoContextFound, b.Build(nil))
	assert.Equal(t, NoContextFound, b.Build([]models.RetrievedDocument{{Text: strings.Repeat("z", 100)}}))
}
