package services

import (
	"context"

	"cinemind/internal/vectorstore"
)

// IndexReader is the read and maintenance side of the vector index.
type IndexReader interface {
	Count(ctx context.Context) int
	CountBy(ctx context.Context, key string) map[string]int
	List(ctx context.Context, limit int, filter map[string]any) []vectorstore.Record
	Reset(ctx context.Context) error
}

// IndexStats summarizes the index contents.
type IndexStats struct {
	Total       int                  `json:"total"`
	BySource    map[string]int       `json:"by_source"`
	BySentiment map[string]int       `json:"by_sentiment"`
	Sample      []vectorstore.Record `json:"sample,omitempty"`
}

// IndexInspector answers inspection and movie lookup queries.
type IndexInspector struct {
	index IndexReader
}

func NewIndexInspector(index IndexReader) *IndexInspector {
	return &IndexInspector{index: index}
}

// Stats counts documents per source and per sentiment label and returns the
// first sample documents. Documents without a sentiment are not counted in
// BySentiment.
func (i *IndexInspector) Stats(ctx context.Context, sample int) IndexStats {
	bySentiment := i.index.CountBy(ctx, "sentiment_label")
	delete(bySentiment, "")

	stats := IndexStats{
		Total:       i.index.Count(ctx),
		BySource:    i.index.CountBy(ctx, "source"),
		BySentiment: bySentiment,
	}
	if sample > 0 {
		stats.Sample = stripEmbeddings(i.index.List(ctx, sample, nil))
	}
	return stats
}

// Count returns the number of stored documents.
func (i *IndexInspector) Count(ctx context.Context) int {
	return i.index.Count(ctx)
}

// MovieDocuments returns the documents stored for one movie id.
func (i *IndexInspector) MovieDocuments(ctx context.Context, movieID string, limit int) []vectorstore.Record {
	return stripEmbeddings(i.index.List(ctx, limit, map[string]any{"movie_id": movieID}))
}

// All returns every stored document.
func (i *IndexInspector) All(ctx context.Context) []vectorstore.Record {
	return stripEmbeddings(i.index.List(ctx, 0, nil))
}

// Reset wipes the collection.
func (i *IndexInspector) Reset(ctx context.Context) error {
	return i.index.Reset(ctx)
}

func stripEmbeddings(recs []vectorstore.Record) []vectorstore.Record {
	for j := range recs {
		recs[j].Embedding = nil
	}
	return recs
}
