package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   [][]string
	tasks   []TaskType
	respond func(texts []string) (RawEmbedding, error)
}

func (f *fakeProvider) Embed(_ context.Context, texts []string, task TaskType) (RawEmbedding, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.tasks = append(f.tasks, task)
	f.mu.Unlock()
	return f.respond(texts)
}

func (f *fakeProvider) Close() error { return nil }

type recordedSleeps struct{ delays []time.Duration }

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

type mapCache struct{ m map[string][]float32 }

func (c *mapCache) GetVector(_ context.Context, key string) ([]float32, bool) {
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) SetVector(_ context.Context, key string, vec []float32) { c.m[key] = vec }

func TestUnwrap(t *testing.T) {
	v1 := []float32{0.1}
	v2 := []float32{0.2}

	tests := []struct {
		name      string
		batchSize int
		raw       RawEmbedding
		want      [][]float32
	}{
		{"single for one text", 1, SingleVector(v1), [][]float32{v1}},
		{"list of one for one text", 1, VectorList([][]float32{v1}), [][]float32{v1}},
		{"list matches batch", 2, VectorList([][]float32{v1, v2}), [][]float32{v1, v2}},
		{"list too short", 2, VectorList([][]float32{v1}), [][]float32{nil, nil}},
		{"list too long", 1, VectorList([][]float32{v1, v2}), [][]float32{nil}},
		{"single for many texts", 2, SingleVector(v1), [][]float32{nil, nil}},
		{"empty single", 1, SingleVector(nil), [][]float32{nil}},
		{"empty entry in list", 2, VectorList([][]float32{v1, {}}), [][]float32{v1, nil}},
		{"untagged response", 2, RawEmbedding{}, [][]float32{nil, nil}},
		{"zero batch", 0, VectorList(nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unwrap(tt.batchSize, tt.raw))
		})
	}
}

func TestEmbedQueryRejectsBlankText(t *testing.T) {
	p := &fakeProvider{respond: func([]string) (RawEmbedding, error) { return SingleVector([]float32{1}), nil }}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{Dimensions: 1})

	_, err := c.EmbedQuery(context.Background(), "   \n")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, p.calls)
}

func TestEmbedQueryUsesQueryTaskAndCache(t *testing.T) {
	p := &fakeProvider{respond: func([]string) (RawEmbedding, error) { return SingleVector([]float32{0.5, 0.5}), nil }}
	cache := &mapCache{m: map[string][]float32{}}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{Dimensions: 2}, WithQueryCache(cache))

	vec, err := c.EmbedQuery(context.Background(), "who is neo")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)

	vec, err = c.EmbedQuery(context.Background(), "who is neo")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)

	require.Len(t, p.calls, 1)
	assert.Equal(t, TaskRetrievalQuery, p.tasks[0])
}

func TestEmbedQueryProviderFailure(t *testing.T) {
	p := &fakeProvider{respond: func([]string) (RawEmbedding, error) { return RawEmbedding{}, errors.New("quota") }}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{})

	vec, err := c.EmbedQuery(context.Background(), "plot")
	assert.Error(t, err)
	assert.Nil(t, vec)
}

func TestEmbedDocumentsAlignsTwoVectorBatch(t *testing.T) {
	p := &fakeProvider{respond: func(texts []string) (RawEmbedding, error) {
		return VectorList([][]float32{{0.1}, {0.2}}), nil
	}}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{Dimensions: 1}, WithSleep((&recordedSleeps{}).sleep))

	out, err := c.EmbedDocuments(context.Background(), []string{"a", "b"}, 20)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}, {0.2}}, out)
	assert.Equal(t, TaskRetrievalDocument, p.tasks[0])
}

func TestEmbedDocumentsFailedBatchKeepsPositions(t *testing.T) {
	p := &fakeProvider{respond: func(texts []string) (RawEmbedding, error) {
		if texts[0] == "c" {
			return RawEmbedding{}, errors.New("503")
		}
		if len(texts) == 1 {
			return SingleVector([]float32{9}), nil
		}
		vecs := make([][]float32, len(texts))
		for i := range texts {
			vecs[i] = []float32{float32(i + 1)}
		}
		return VectorList(vecs), nil
	}}
	sleeps := &recordedSleeps{}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{Dimensions: 1, BatchDelay: 500 * time.Millisecond}, WithSleep(sleeps.sleep))

	out, err := c.EmbedDocuments(context.Background(), []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)

	require.Len(t, out, 5)
	assert.Equal(t, []float32{1}, out[0])
	assert.Equal(t, []float32{2}, out[1])
	assert.Nil(t, out[2])
	assert.Nil(t, out[3])
	assert.Equal(t, []float32{9}, out[4])

	assert.Len(t, p.calls, 3)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeps.delays)
}

func TestEmbedDocumentsValidatesBatchSize(t *testing.T) {
	p := &fakeProvider{respond: func([]string) (RawEmbedding, error) { return RawEmbedding{}, nil }}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{})

	_, err := c.EmbedDocuments(context.Background(), []string{"a"}, 0)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
	_, err = c.EmbedDocuments(context.Background(), []string{"a"}, 101)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
	assert.Empty(t, p.calls)
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	p := &fakeProvider{respond: func([]string) (RawEmbedding, error) { return RawEmbedding{}, nil }}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{})

	out, err := c.EmbedDocuments(context.Background(), nil, 20)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, p.calls)
}

func TestEmbedDocumentsStopsOnCancelledContext(t *testing.T) {
	p := &fakeProvider{respond: func(texts []string) (RawEmbedding, error) {
		return SingleVector([]float32{1}), nil
	}}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{Dimensions: 1}, WithSleep(func(context.Context, time.Duration) error {
		return context.Canceled
	}))

	out, err := c.EmbedDocuments(context.Background(), []string{"a", "b"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float32{1}, out[0])
	assert.Nil(t, out[1])
}

func TestEmbedDocumentsZeroDelayUsesDefault(t *testing.T) {
	p := &fakeProvider{respond: func(texts []string) (RawEmbedding, error) {
		return SingleVector([]float32{1}), nil
	}}
	sleeps := &recordedSleeps{}
	c := NewEmbeddingClient(p, EmbeddingClientConfig{Dimensions: 1, BatchDelay: 0}, WithSleep(sleeps.sleep))

	_, err := c.EmbedDocuments(context.Background(), []string{"a", "b", "c"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultBatchDelay, DefaultBatchDelay}, sleeps.delays)
}
