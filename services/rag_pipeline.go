package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cinemind/internal/logger"
	"cinemind/internal/telemetry"
	"cinemind/models"
)

const (
	DefaultQueryLimit = 10
	maxSources        = 5
	// NoAnswer is the reply when retrieval finds nothing.
	NoAnswer = "I could not find any information about this in my database."
)

// AnswerGenerator produces an answer from a question and its context block.
type AnswerGenerator interface {
	Generate(ctx context.Context, question, contextBlock string) (string, error)
}

// MovieLookup resolves a title to catalog metadata. TMDbClient implements it.
type MovieLookup interface {
	SearchMovie(ctx context.Context, query string) (int, error)
	GetMovie(ctx context.Context, tmdbID int) (*models.Movie, error)
}

// RAGResponse is the answer with the sources it was built from. Movie is set
// when a movie-scoped query found catalog metadata.
type RAGResponse struct {
	Answer  string                     `json:"answer"`
	Sources []models.RetrievedDocument `json:"sources"`
	Query   string                     `json:"query"`
	Movie   *models.Movie              `json:"movie,omitempty"`
}

// RAGPipeline wires retrieval, context assembly and generation.
type RAGPipeline struct {
	retriever *Retriever
	builder   *ContextBuilder
	generator AnswerGenerator
	movies    MovieLookup
	metrics   *telemetry.Metrics
	log       *slog.Logger
}

type RAGOption func(*RAGPipeline)

// WithMovieMetadata lets QueryMovie add the film's catalog card (director,
// genres, rating, synopsis) to the context.
func WithMovieMetadata(lookup MovieLookup) RAGOption {
	return func(p *RAGPipeline) { p.movies = lookup }
}

func NewRAGPipeline(retriever *Retriever, builder *ContextBuilder, generator AnswerGenerator, metrics *telemetry.Metrics, opts ...RAGOption) *RAGPipeline {
	if builder == nil {
		builder = NewContextBuilder(DefaultContextMaxTokens)
	}
	p := &RAGPipeline{
		retriever: retriever,
		builder:   builder,
		generator: generator,
		metrics:   metrics,
		log:       logger.With("component", "rag_pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Query answers question from at most limit retrieved documents. With no
// documents the generator is not called.
func (p *RAGPipeline) Query(ctx context.Context, question string, limit int, filter *models.SourceKind) (*RAGResponse, error) {
	return p.answer(ctx, question, limit, filter, nil)
}

// QueryMovie scopes a question to one film by prefixing its title. With a
// MovieLookup configured the film's catalog card is put ahead of the
// retrieved documents; lookup failures only drop the card.
func (p *RAGPipeline) QueryMovie(ctx context.Context, title, question string) (*RAGResponse, error) {
	return p.answer(ctx, title+": "+question, DefaultQueryLimit, nil, p.lookupMovie(ctx, title))
}

func (p *RAGPipeline) answer(ctx context.Context, question string, limit int, filter *models.SourceKind, movie *models.Movie) (*RAGResponse, error) {
	start := time.Now()
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	p.log.Info("query received", "question", truncate(question, 50), "limit", limit, "metadata", movie != nil)

	docs := p.retriever.Retrieve(ctx, question, limit, filter)
	defer func() { p.metrics.RecordQuery(time.Since(start).Seconds(), len(docs)) }()

	if len(docs) == 0 && movie == nil {
		return &RAGResponse{Answer: NoAnswer, Sources: []models.RetrievedDocument{}, Query: question}, nil
	}

	var blocks []string
	if movie != nil {
		blocks = append(blocks, FormatMovieMetadata(*movie))
	}
	if len(docs) > 0 {
		blocks = append(blocks, p.builder.Build(docs))
	}
	answer, err := p.generator.Generate(ctx, question, strings.Join(blocks, "\n"))
	if err != nil {
		p.log.Error("answer generation failed", "error", err)
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	sources := docs
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	if sources == nil {
		sources = []models.RetrievedDocument{}
	}
	return &RAGResponse{Answer: answer, Sources: sources, Query: question, Movie: movie}, nil
}

func (p *RAGPipeline) lookupMovie(ctx context.Context, title string) *models.Movie {
	if p.movies == nil {
		return nil
	}
	id, err := p.movies.SearchMovie(ctx, title)
	if err != nil {
		p.log.Warn("movie search failed", "title", title, "error", err)
		return nil
	}
	if id == 0 {
		p.log.Info("movie not in catalog", "title", title)
		return nil
	}
	movie, err := p.movies.GetMovie(ctx, id)
	if err != nil {
		p.log.Warn("movie details failed", "title", title, "tmdb_id", id, "error", err)
		return nil
	}
	return movie
}

// FormatMovieMetadata renders a catalog card in the context entry format.
func FormatMovieMetadata(m models.Movie) string {
	director := m.Director
	if director == "" {
		director = "Unknown"
	}
	genres := "Unknown"
	if len(m.Genres) > 0 {
		genres = strings.Join(m.Genres, ", ")
	}
	rating := "n/a"
	if m.Rating != nil {
		rating = strconv.FormatFloat(*m.Rating, 'f', 1, 64) + "/10"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[TMDB METADATA] %s\n---\n", m.Title)
	fmt.Fprintf(&sb, "Film: %s\nDirector: %s\nGenres: %s\nRating: %s\n", m.DisplayTitle(), director, genres, rating)
	fmt.Fprintf(&sb, "Synopsis: %s", m.Synopsis)
	return sb.String()
}
