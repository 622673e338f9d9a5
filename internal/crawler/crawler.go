// Package crawler scrapes user reviews from IMDb title pages.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"cinemind/internal/logger"
	"cinemind/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

var httpTransport = &http.Transport{
	DisableCompression: false,
	MaxIdleConns:       10,
	IdleConnTimeout:    90 * time.Second,
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.5; rv:131.0) Gecko/20100101 Firefox/131.0",
}

// Target is a title page to scrape.
type Target struct {
	IMDbID string
	Title  string
	Year   int
}

// SeedTargets is the fixed list used by the scrape pipeline; there is no live
// search.
var SeedTargets = []Target{
	{IMDbID: "tt1375666", Title: "Inception", Year: 2010},
	{IMDbID: "tt0468569", Title: "The Dark Knight", Year: 2008},
	{IMDbID: "tt0133093", Title: "The Matrix", Year: 1999},
	{IMDbID: "tt0111161", Title: "The Shawshank Redemption", Year: 1994},
	{IMDbID: "tt0068646", Title: "The Godfather", Year: 1972},
}

// ScrapeConfig holds configuration for the review scraper
type ScrapeConfig struct {
	BaseURL   string
	Timeout   time.Duration
	JitterMin time.Duration
	JitterMax time.Duration
	// Optional headless rendering when the static page has no reviews
	RenderJS      bool
	RenderTimeout time.Duration
}

// RenderFunc returns the fully rendered HTML of a page.
type RenderFunc func(ctx context.Context, url string, timeout time.Duration) (string, error)

type Option func(*ReviewScraper)

// WithSleep replaces the pre-request jitter wait.
func WithSleep(fn utils.SleepFunc) Option {
	return func(s *ReviewScraper) { s.sleep = fn }
}

// WithRenderer replaces the headless browser used for the JS fallback.
func WithRenderer(fn RenderFunc) Option {
	return func(s *ReviewScraper) { s.render = fn }
}

// ReviewScraper fetches and parses the review list of a title.
type ReviewScraper struct {
	cfg    ScrapeConfig
	sleep  utils.SleepFunc
	render RenderFunc
	log    *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewReviewScraper(cfg ScrapeConfig, opts ...Option) *ReviewScraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.imdb.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}
	if cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMax = cfg.JitterMin
	}
	s := &ReviewScraper{
		cfg:    cfg,
		sleep:  utils.Sleep,
		render: renderPageHTML,
		log:    logger.With("component", "imdb_scraper"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReviewScraper) ReviewsURL(imdbID string) string {
	return fmt.Sprintf("%s/title/%s/reviews", s.cfg.BaseURL, imdbID)
}

// FetchReviews returns at most maxReviews reviews for imdbID. Every failure is
// logged and yields an empty list.
func (s *ReviewScraper) FetchReviews(ctx context.Context, imdbID string, maxReviews int) []ScrapedReview {
	wait := s.jitter()
	s.log.Info("waiting before scrape", "imdb_id", imdbID, "wait", wait.String())
	if err := s.sleep(ctx, wait); err != nil {
		return []ScrapedReview{}
	}

	pageURL := s.ReviewsURL(imdbID)
	reviews, err := s.fetchStatic(ctx, pageURL, maxReviews)
	if err != nil {
		s.log.Error("review scrape failed", "imdb_id", imdbID, "error", err)
		reviews = nil
	}

	if len(reviews) == 0 && s.cfg.RenderJS && ctx.Err() == nil {
		html, err := s.render(ctx, pageURL, s.cfg.RenderTimeout)
		if err != nil {
			s.log.Error("rendered scrape failed", "imdb_id", imdbID, "error", err)
			return []ScrapedReview{}
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return []ScrapedReview{}
		}
		reviews = ParseReviews(doc.Selection, maxReviews)
	}

	if reviews == nil {
		reviews = []ScrapedReview{}
	}
	s.log.Info("reviews scraped", "imdb_id", imdbID, "count", len(reviews))
	return reviews
}

func (s *ReviewScraper) fetchStatic(ctx context.Context, pageURL string, maxReviews int) ([]ScrapedReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector()
	c.WithTransport(httpTransport)
	c.SetRequestTimeout(s.cfg.Timeout)
	c.IgnoreRobotsTxt = true

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", s.userAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		r.Headers.Set("Referer", "https://www.google.com/")
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		r.Body = decodeBody(r.Body, r.Headers.Get("Content-Encoding"), r.Headers.Get("Content-Type"))
	})

	var (
		reviews   []ScrapedReview
		scrapeErr error
	)
	c.OnHTML("html", func(e *colly.HTMLElement) {
		reviews = ParseReviews(e.DOM, maxReviews)
	})
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	var visited *colly.AlreadyVisitedError
	if err := c.Visit(pageURL); err != nil && !errors.As(err, &visited) {
		return nil, err
	}
	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return reviews, nil
}

// decodeBody undoes brotli (which net/http does not handle) and converts the
// body to UTF-8.
func decodeBody(body []byte, contentEncoding, contentType string) []byte {
	var reader io.Reader = bytes.NewReader(body)
	if strings.Contains(contentEncoding, "br") {
		if decompressed, err := io.ReadAll(brotli.NewReader(reader)); err == nil {
			body = decompressed
		}
	}
	if len(body) == 0 {
		return body
	}
	utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil || len(decoded) == 0 {
		return body
	}
	return decoded
}

func (s *ReviewScraper) jitter() time.Duration {
	span := s.cfg.JitterMax - s.cfg.JitterMin
	if span <= 0 {
		return s.cfg.JitterMin
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.JitterMin + time.Duration(s.rnd.Int63n(int64(span)))
}

func (s *ReviewScraper) userAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return userAgents[s.rnd.Intn(len(userAgents))]
}
