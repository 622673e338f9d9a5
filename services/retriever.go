package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"cinemind/internal/logger"
	"cinemind/internal/vectorstore"
	"cinemind/models"
)

// Source reliability weights. A lower weighted score ranks higher.
var sourceWeights = map[models.SourceKind]float64{
	models.SourceScript: 1.0,
	models.SourceIMDb:   0.9,
	models.SourceTMDb:   0.8,
}

const unknownSourceWeight = 0.5

// SourceWeight returns the reliability weight of a source kind.
func SourceWeight(k models.SourceKind) float64 {
	if w, ok := sourceWeights[k]; ok {
		return w
	}
	return unknownSourceWeight
}

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, filter map[string]any) []vectorstore.Hit
}

// Retriever embeds a question, searches the index and re-ranks the hits by
// source.
type Retriever struct {
	embedder QueryEmbedder
	index    VectorSearcher
	log      *slog.Logger
}

func NewRetriever(embedder QueryEmbedder, index VectorSearcher) *Retriever {
	return &Retriever{embedder: embedder, index: index, log: logger.With("component", "retriever")}
}

// Retrieve returns up to limit documents ordered by weighted score. A nil
// filter searches every source. An embedding failure yields an empty list.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int, filter *models.SourceKind) []models.RetrievedDocument {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil || len(vec) == 0 {
		r.log.Error("query embedding failed", "error", err)
		return []models.RetrievedDocument{}
	}

	var where map[string]any
	if filter != nil {
		where = map[string]any{"source": string(*filter)}
	}

	docs := ParseHits(r.index.Search(ctx, vec, limit, where))
	Rerank(docs)
	r.log.Info("documents retrieved", "count", len(docs))
	return docs
}

// ParseHits converts raw index hits. A missing or unknown source tag is read
// as tmdb and a missing title as Unknown.
func ParseHits(hits []vectorstore.Hit) []models.RetrievedDocument {
	docs := make([]models.RetrievedDocument, 0, len(hits))
	for _, h := range hits {
		meta := h.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		source, _ := models.ParseSourceKind(metaString(meta, "source"))
		title := metaString(meta, "movie_title")
		if title == "" {
			title = "Unknown"
		}
		docs = append(docs, models.RetrievedDocument{
			ID:         h.ID,
			Text:       h.Document,
			Source:     source,
			MovieTitle: title,
			Distance:   h.Distance,
			Metadata:   meta,
		})
	}
	return docs
}

// Rerank sets WeightedScore = Distance / weight and sorts ascending. Equal
// scores keep their input order.
func Rerank(docs []models.RetrievedDocument) {
	for i := range docs {
		docs[i].WeightedScore = docs[i].Distance * (1 / SourceWeight(docs[i].Source))
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].WeightedScore < docs[j].WeightedScore })
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
