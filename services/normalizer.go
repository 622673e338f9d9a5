package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cinemind/models"
)

var ErrUnsupportedRecord = errors.New("unsupported source record")

// Normalizer turns source records into UnifiedDocuments. It has no side
// effects; the clock is injected so output is reproducible.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize dispatches on the concrete record type.
func (n *Normalizer) Normalize(rec models.SourceRecord, movie models.Movie) (models.UnifiedDocument, error) {
	createdAt := n.now().UTC()
	switch r := rec.(type) {
	case *models.TMDbReview:
		return NewTMDbDocument(movie, r, createdAt), nil
	case *models.IMDbReview:
		return NewIMDbDocument(movie, r, createdAt), nil
	case *models.ScriptChunk:
		return NewScriptDocument(movie, r, createdAt), nil
	default:
		return models.UnifiedDocument{}, fmt.Errorf("%w: %T", ErrUnsupportedRecord, rec)
	}
}

func NewTMDbDocument(movie models.Movie, r *models.TMDbReview, createdAt time.Time) models.UnifiedDocument {
	meta := map[string]any{
		"review_id":   r.ReviewID,
		"author":      r.Author,
		"rating":      r.Rating,
		"review_date": r.Date,
	}
	return reviewDocument(movie, models.SourceTMDb, "TMDb", r.ReviewID, r.Author, r.Rating, r.Text, meta, r.Sentiment, createdAt)
}

func NewIMDbDocument(movie models.Movie, r *models.IMDbReview, createdAt time.Time) models.UnifiedDocument {
	meta := map[string]any{
		"review_id":     r.ReviewID,
		"author":        r.Author,
		"rating":        r.Rating,
		"review_date":   r.Date,
		"helpful_count": r.HelpfulCount,
	}
	return reviewDocument(movie, models.SourceIMDb, "IMDb", r.ReviewID, r.Author, r.Rating, r.Text, meta, r.Sentiment, createdAt)
}

func reviewDocument(movie models.Movie, source models.SourceKind, label, recordID, author string, rating *float64,
	text string, meta map[string]any, sentiment *models.SentimentResult, createdAt time.Time) models.UnifiedDocument {
	var b strings.Builder
	b.WriteString(movie.DisplayTitle())
	b.WriteString("\n")
	b.WriteString(label + " Review by " + author)
	if rating != nil && *rating > 0 {
		b.WriteString(" (Rating: " + strconv.FormatFloat(*rating, 'f', -1, 64) + "/10)")
	}
	b.WriteString("\nReview: ")
	b.WriteString(text)

	return models.UnifiedDocument{
		ID:        models.DocumentID(source, recordID),
		Movie:     movie,
		Text:      b.String(),
		Source:    source,
		Metadata:  models.CleanMetadata(meta),
		Sentiment: sentiment,
		CreatedAt: createdAt,
	}
}

func NewScriptDocument(movie models.Movie, c *models.ScriptChunk, createdAt time.Time) models.UnifiedDocument {
	text := fmt.Sprintf("Movie: %s\nScene %d: %s\nDialogue:\n%s",
		movie.DisplayTitle(), c.SceneNumber(), c.Heading, c.Content)

	meta := map[string]any{
		"chunk_id":     c.ChunkID,
		"chunk_number": c.SceneNumber(),
		"chunk_index":  c.Index,
		"total_chunks": c.Total,
		"heading":      c.Heading,
		"page_number":  c.PageNumber,
	}
	if c.FileName != "" {
		meta["file_name"] = c.FileName
	}

	return models.UnifiedDocument{
		ID:        models.DocumentID(models.SourceScript, c.ChunkID),
		Movie:     movie,
		Text:      text,
		Source:    models.SourceScript,
		Metadata:  models.CleanMetadata(meta),
		CreatedAt: createdAt,
	}
}
