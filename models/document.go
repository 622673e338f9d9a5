package models

import (
	"time"
)

// EmbeddingDimensions is the vector size produced by text-embedding-004.
const EmbeddingDimensions = 768

// UnifiedDocument is the normalized, source-independent form written to the
// vector index.
type UnifiedDocument struct {
	ID        string           `json:"id"`
	Movie     Movie            `json:"movie"`
	Text      string           `json:"text"`
	Source    SourceKind       `json:"source"`
	Metadata  map[string]any   `json:"metadata"`
	Embedding []float32        `json:"-"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// DocumentID builds the globally unique, source-prefixed document id.
func DocumentID(source SourceKind, recordID string) string {
	return string(source) + "-" + recordID
}

// IndexMetadata returns the flat metadata map stored next to the vector.
func (d UnifiedDocument) IndexMetadata() map[string]any {
	meta := make(map[string]any, len(d.Metadata)+7)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta["movie_id"] = d.Movie.MovieID
	meta["movie_title"] = d.Movie.Title
	meta["source"] = string(d.Source)
	if !d.CreatedAt.IsZero() {
		meta["created_at"] = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	if d.Movie.Year > 0 {
		meta["movie_year"] = d.Movie.Year
	}
	if d.Sentiment != nil {
		meta["sentiment_label"] = d.Sentiment.Label
		meta["sentiment_score"] = d.Sentiment.Score
	}
	return CleanMetadata(meta)
}

// CleanMetadata drops nil values, including nil pointers, and dereferences
// the pointer types used by the record structs. The index rejects nulls.
func CleanMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case *string:
			if val != nil {
				out[k] = *val
			}
		case *int:
			if val != nil {
				out[k] = *val
			}
		case *float64:
			if val != nil {
				out[k] = *val
			}
		case *time.Time:
			if val != nil {
				out[k] = val.UTC().Format(time.RFC3339)
			}
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		default:
			out[k] = v
		}
	}
	return out
}

// RetrievedDocument is one search hit after parsing and re-ranking.
type RetrievedDocument struct {
	ID            string         `json:"id"`
	Text          string         `json:"content"`
	Source        SourceKind     `json:"source"`
	MovieTitle    string         `json:"movie_title"`
	Distance      float64        `json:"distance"`
	Metadata      map[string]any `json:"metadata"`
	WeightedScore float64        `json:"weighted_score"`
}
