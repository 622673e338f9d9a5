package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// localized labels the sentiment service is known to emit
var sentimentAliases = map[string]string{
	"positive": SentimentPositive,
	"pozitif":  SentimentPositive,
	"negative": SentimentNegative,
	"negatif":  SentimentNegative,
	"neutral":  SentimentNeutral,
	"nötr":     SentimentNeutral,
	"notr":     SentimentNeutral,
}

// SentimentResult is a classifier verdict for one text.
type SentimentResult struct {
	Label string  `json:"label" bson:"label"`
	Score float64 `json:"score" bson:"score"`
}

// NeutralSentiment is the filler used when the classifier cannot answer.
func NeutralSentiment() SentimentResult {
	return SentimentResult{Label: SentimentNeutral, Score: 0}
}

// NewSentimentResult canonicalizes known labels and clamps the score to [0,1].
// Unknown labels are kept verbatim.
func NewSentimentResult(label string, score float64) SentimentResult {
	trimmed := strings.TrimSpace(label)
	if canonical, ok := sentimentAliases[strings.ToLower(trimmed)]; ok {
		trimmed = canonical
	}
	if trimmed == "" {
		trimmed = SentimentNeutral
	}
	switch {
	case score < 0:
		score = 0
	case score > 1:
		score = 1
	}
	return SentimentResult{Label: trimmed, Score: score}
}

// SourceRecord is one raw item from a source before normalization.
type SourceRecord interface {
	Source() SourceKind
	RecordID() string
	OwnerMovieID() string
	Body() string
	AttachSentiment(SentimentResult)
}

// TMDbReview is a user review from the catalog API.
type TMDbReview struct {
	ReviewID  string           `json:"review_id" bson:"review_id"`
	MovieID   string           `json:"movie_id" bson:"movie_id"`
	Author    string           `json:"author" bson:"author"`
	Rating    *float64         `json:"rating,omitempty" bson:"rating,omitempty"`
	Text      string           `json:"text" bson:"text"`
	Date      *time.Time       `json:"date,omitempty" bson:"date,omitempty"`
	Sentiment *SentimentResult `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
}

func (r *TMDbReview) Source() SourceKind                { return SourceTMDb }
func (r *TMDbReview) RecordID() string                  { return r.ReviewID }
func (r *TMDbReview) OwnerMovieID() string              { return r.MovieID }
func (r *TMDbReview) Body() string                      { return r.Text }
func (r *TMDbReview) AttachSentiment(s SentimentResult) { r.Sentiment = &s }

// IMDbReview is a scraped user review.
type IMDbReview struct {
	ReviewID     string           `json:"review_id" bson:"review_id"`
	MovieID      string           `json:"movie_id" bson:"movie_id"`
	Author       string           `json:"author" bson:"author"`
	Rating       *float64         `json:"rating,omitempty" bson:"rating,omitempty"`
	Text         string           `json:"text" bson:"text"`
	Date         *time.Time       `json:"date,omitempty" bson:"date,omitempty"`
	HelpfulCount *int             `json:"helpful_count,omitempty" bson:"helpful_count,omitempty"`
	Sentiment    *SentimentResult `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
}

func (r *IMDbReview) Source() SourceKind                { return SourceIMDb }
func (r *IMDbReview) RecordID() string                  { return r.ReviewID }
func (r *IMDbReview) OwnerMovieID() string              { return r.MovieID }
func (r *IMDbReview) Body() string                      { return r.Text }
func (r *IMDbReview) AttachSentiment(s SentimentResult) { r.Sentiment = &s }

// ScriptChunk is an ordered slice of a screenplay.
type ScriptChunk struct {
	ChunkID    string `json:"chunk_id" bson:"chunk_id"`
	MovieID    string `json:"movie_id" bson:"movie_id"`
	Index      int    `json:"index" bson:"index"`
	Total      int    `json:"total" bson:"total"`
	Heading    string `json:"heading" bson:"heading"`
	Content    string `json:"content" bson:"content"`
	PageNumber *int   `json:"page_number,omitempty" bson:"page_number,omitempty"`
	FileName   string `json:"file_name,omitempty" bson:"file_name,omitempty"`
}

func (c *ScriptChunk) Source() SourceKind   { return SourceScript }
func (c *ScriptChunk) RecordID() string     { return c.ChunkID }
func (c *ScriptChunk) OwnerMovieID() string { return c.MovieID }
func (c *ScriptChunk) Body() string         { return c.Content }

// AttachSentiment is a no-op: narrative text carries no sentiment.
func (c *ScriptChunk) AttachSentiment(SentimentResult) {}

// SceneNumber is the 1-based position of the chunk.
func (c *ScriptChunk) SceneNumber() int { return c.Index + 1 }

// Validate checks the ordering invariant 0 <= Index < Total.
func (c *ScriptChunk) Validate() error {
	if c.Total <= 0 || c.Index < 0 || c.Index >= c.Total {
		return fmt.Errorf("chunk %s: index %d out of range for total %d", c.ChunkID, c.Index, c.Total)
	}
	return nil
}
