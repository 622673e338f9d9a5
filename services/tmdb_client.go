package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cinemind/internal/logger"
	"cinemind/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	DefaultTMDbBaseURL = "https://api.themoviedb.org/3"
	tmdbPosterBase     = "https://image.tmdb.org/t/p/w500"
)

// CatalogEntry is one row of a TMDb listing.
type CatalogEntry struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// TMDbClient reads movies and reviews from the TMDb v3 API.
type TMDbClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	language   string
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewTMDbClient creates a client limited to perSecond requests per second.
func NewTMDbClient(baseURL, apiKey, language string, perSecond int) *TMDbClient {
	if baseURL == "" {
		baseURL = DefaultTMDbBaseURL
	}
	if language == "" {
		language = "en-US"
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	return &TMDbClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		language:   language,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		log:        logger.With("component", "tmdb_client"),
	}
}

func (c *TMDbClient) request(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, span := otel.Tracer("tmdb-client").Start(ctx, "tmdb.request")
	defer span.End()
	span.SetAttributes(attribute.String("tmdb.endpoint", endpoint))

	if params == nil {
		params = url.Values{}
	}
	params.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create TMDb request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("TMDb request %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		span.SetAttributes(attribute.Int("tmdb.status", resp.StatusCode))
		return fmt.Errorf("TMDb %s returned status %d: %s", endpoint, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode TMDb %s response: %w", endpoint, err)
	}
	return nil
}

// PopularMovies returns one page of the popular listing.
func (c *TMDbClient) PopularMovies(ctx context.Context, page int) ([]CatalogEntry, error) {
	var data struct {
		Results []CatalogEntry `json:"results"`
	}
	params := url.Values{"page": {strconv.Itoa(page)}}
	if err := c.request(ctx, "/movie/popular", params, &data); err != nil {
		return nil, err
	}
	return data.Results, nil
}

// SearchMovie returns the TMDb id of the best match for query, or 0.
func (c *TMDbClient) SearchMovie(ctx context.Context, query string) (int, error) {
	var data struct {
		Results []CatalogEntry `json:"results"`
	}
	if err := c.request(ctx, "/search/movie", url.Values{"query": {query}}, &data); err != nil {
		return 0, err
	}
	if len(data.Results) == 0 {
		return 0, nil
	}
	return data.Results[0].ID, nil
}

type tmdbMovie struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	ReleaseDate string   `json:"release_date"`
	Overview    string   `json:"overview"`
	PosterPath  string   `json:"poster_path"`
	Runtime     int      `json:"runtime"`
	VoteAverage *float64 `json:"vote_average"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Credits struct {
		Crew []struct {
			Job  string `json:"job"`
			Name string `json:"name"`
		} `json:"crew"`
	} `json:"credits"`
}

// GetMovie fetches details with credits so the director can be filled in.
func (c *TMDbClient) GetMovie(ctx context.Context, tmdbID int) (*models.Movie, error) {
	var data tmdbMovie
	params := url.Values{"append_to_response": {"credits"}}
	if err := c.request(ctx, "/movie/"+strconv.Itoa(tmdbID), params, &data); err != nil {
		return nil, err
	}

	director := "Unknown"
	for _, p := range data.Credits.Crew {
		if p.Job == "Director" {
			director = p.Name
			break
		}
	}

	year := 0
	if len(data.ReleaseDate) >= 4 {
		year, _ = strconv.Atoi(data.ReleaseDate[:4])
	}

	genres := make([]string, 0, len(data.Genres))
	for _, g := range data.Genres {
		genres = append(genres, g.Name)
	}

	movie := &models.Movie{
		MovieID:   models.MovieSlug(data.Title, year),
		Title:     data.Title,
		Director:  director,
		Year:      year,
		Genres:    genres,
		Rating:    data.VoteAverage,
		Synopsis:  data.Overview,
		Runtime:   data.Runtime,
		CreatedAt: time.Now().UTC(),
	}
	if data.PosterPath != "" {
		movie.PosterURL = tmdbPosterBase + data.PosterPath
	}
	return movie, nil
}

type tmdbReviewPage struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	Results    []struct {
		ID            string `json:"id"`
		Author        string `json:"author"`
		Content       string `json:"content"`
		CreatedAt     string `json:"created_at"`
		AuthorDetails struct {
			Rating *float64 `json:"rating"`
		} `json:"author_details"`
	} `json:"results"`
}

// GetReviews pages through reviews, skipping entries without content. A
// failure after the first page returns what was collected so far.
func (c *TMDbClient) GetReviews(ctx context.Context, tmdbID int, movieID string, maxPages int) ([]*models.TMDbReview, error) {
	if maxPages < 1 {
		maxPages = 1
	}
	var reviews []*models.TMDbReview
	for page := 1; page <= maxPages; page++ {
		var data tmdbReviewPage
		params := url.Values{"page": {strconv.Itoa(page)}}
		if err := c.request(ctx, fmt.Sprintf("/movie/%d/reviews", tmdbID), params, &data); err != nil {
			if page == 1 {
				return nil, err
			}
			c.log.Warn("stopping review paging", "tmdb_id", tmdbID, "page", page, "error", err)
			break
		}
		if len(data.Results) == 0 {
			break
		}
		for _, item := range data.Results {
			if strings.TrimSpace(item.Content) == "" {
				continue
			}
			r := &models.TMDbReview{
				ReviewID: item.ID,
				MovieID:  movieID,
				Author:   item.Author,
				Rating:   item.AuthorDetails.Rating,
				Text:     item.Content,
			}
			if ts, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil {
				ts = ts.UTC()
				r.Date = &ts
			}
			reviews = append(reviews, r)
		}
		if page >= data.TotalPages {
			break
		}
	}
	return reviews, nil
}
