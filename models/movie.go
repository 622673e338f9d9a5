package models

import (
	"strconv"
	"strings"
	"time"
)

// SourceKind identifies where a document came from.
type SourceKind string

const (
	SourceTMDb   SourceKind = "tmdb"
	SourceIMDb   SourceKind = "imdb"
	SourceScript SourceKind = "script"
)

// AllSources lists the known source kinds in ingestion order.
var AllSources = []SourceKind{SourceTMDb, SourceIMDb, SourceScript}

func (k SourceKind) String() string { return string(k) }

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceTMDb, SourceIMDb, SourceScript:
		return true
	}
	return false
}

// ParseSourceKind maps a raw tag to a SourceKind. Unknown or empty tags fall
// back to the catalog API kind and report false.
func ParseSourceKind(raw string) (SourceKind, bool) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(raw)))
	if k.Valid() {
		return k, true
	}
	return SourceTMDb, false
}

// Movie is the film a document belongs to.
type Movie struct {
	MovieID   string    `json:"movie_id" bson:"movie_id"`
	Title     string    `json:"title" bson:"title"`
	Director  string    `json:"director,omitempty" bson:"director,omitempty"`
	Year      int       `json:"year,omitempty" bson:"year,omitempty"` // 0 when unknown
	Genres    []string  `json:"genres,omitempty" bson:"genres,omitempty"`
	Rating    *float64  `json:"rating,omitempty" bson:"rating,omitempty"`
	Synopsis  string    `json:"synopsis,omitempty" bson:"synopsis,omitempty"`
	PosterURL string    `json:"poster_url,omitempty" bson:"poster_url,omitempty"`
	Runtime   int       `json:"runtime,omitempty" bson:"runtime,omitempty"` // minutes
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// MovieSlug builds the deterministic movie id: lower-case title with spaces
// replaced by hyphens and colons removed, followed by the year when known.
func MovieSlug(title string, year int) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.ReplaceAll(slug, ":", "")
	slug = strings.Join(strings.Fields(slug), "-")
	if year > 0 {
		slug += "-" + strconv.Itoa(year)
	}
	return slug
}

// DisplayTitle renders "Title (Year)", or just the title when the year is unknown.
func (m Movie) DisplayTitle() string {
	if m.Year > 0 {
		return m.Title + " (" + strconv.Itoa(m.Year) + ")"
	}
	return m.Title
}
