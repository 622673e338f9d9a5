package services

import (
	"log/slog"
	"strings"

	"cinemind/internal/ai"
	"cinemind/internal/logger"
	"cinemind/models"
)

const (
	DefaultContextMaxTokens = 3000
	// NoContextFound is returned when no document fits the budget.
	NoContextFound = "No relevant information found."
)

var sourceLabels = map[models.SourceKind]string{
	models.SourceScript: "SCRIPT",
	models.SourceIMDb:   "IMDB REVIEW",
	models.SourceTMDb:   "TMDB REVIEW",
}

// ContextBuilder renders ranked documents into the prompt body under a token
// budget.
type ContextBuilder struct {
	maxTokens int
	log       *slog.Logger
}

func NewContextBuilder(maxTokens int) *ContextBuilder {
	if maxTokens <= 0 {
		maxTokens = DefaultContextMaxTokens
	}
	return &ContextBuilder{maxTokens: maxTokens, log: logger.With("component", "context_builder")}
}

// Build appends documents in order until the next one would exceed the
// budget. Documents are never cut.
func (b *ContextBuilder) Build(docs []models.RetrievedDocument) string {
	parts := make([]string, 0, len(docs))
	used := 0
	for _, d := range docs {
		cost := ai.EstimateTokens(d.Text)
		if used+cost > b.maxTokens {
			b.log.Warn("context budget reached", "max_tokens", b.maxTokens, "included", len(parts), "available", len(docs))
			break
		}
		parts = append(parts, formatEntry(d))
		used += cost
	}
	if len(parts) == 0 {
		return NoContextFound
	}
	b.log.Info("context built", "tokens", used, "sources", len(parts))
	return strings.Join(parts, "\n")
}

func formatEntry(d models.RetrievedDocument) string {
	label, ok := sourceLabels[d.Source]
	if !ok {
		label = "DOCUMENT"
	}
	return "[" + label + "] " + d.MovieTitle + "\n---\n" + d.Text
}
