package crawler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewPage = `<html><body>
<div class="review-container">
  <a class="title">Mind blown</a>
  <span class="display-name-link"><a>neo</a></span>
  <span class="review-date">2 January 2020</span>
  <span class="rating-other-user-rating"><span>9</span><span>/10</span></span>
  <div class="text show-more__control">Red pill<br>or blue pill.</div>
  <div class="actions">1,234 out of 1,500 found this helpful.</div>
</div>
<div class="review-container">
  <a class="title">Empty one</a>
  <div class="text show-more__control">   </div>
</div>
<div class="review-container">
  <div class="text show-more__control">No title, no rating.</div>
</div>
<div class="review-container">
  <a class="title">Third</a>
  <div class="text show-more__control">Extra review.</div>
</div>
</body></html>`

func noWait(context.Context, time.Duration) error { return nil }

func TestParseReviews(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(reviewPage))
	require.NoError(t, err)

	reviews := ParseReviews(doc.Selection, 2)
	require.Len(t, reviews, 2)

	first := reviews[0]
	assert.Equal(t, "Mind blown", first.Title)
	assert.Equal(t, "neo", first.Author)
	assert.Equal(t, "Red pill or blue pill.", first.Content)
	require.NotNil(t, first.Rating)
	assert.Equal(t, 9.0, *first.Rating)
	require.NotNil(t, first.HelpfulCount)
	assert.Equal(t, 1234, *first.HelpfulCount)
	require.NotNil(t, first.Date)
	assert.Equal(t, time.January, first.Date.Month())

	second := reviews[1]
	assert.Equal(t, "No Title", second.Title)
	assert.Nil(t, second.Rating)
	assert.Nil(t, second.HelpfulCount)
}

func TestParseRating(t *testing.T) {
	assert.Equal(t, 8.0, *parseRating("8/10"))
	assert.Equal(t, 7.5, *parseRating(" 7.5 "))
	assert.Nil(t, parseRating(""))
	assert.Nil(t, parseRating("n/a"))
}

func TestFetchReviewsFromServer(t *testing.T) {
	var gotUA, gotLang, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/title/tt0133093/reviews", r.URL.Path)
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(reviewPage))
	}))
	defer srv.Close()

	s := NewReviewScraper(ScrapeConfig{BaseURL: srv.URL}, WithSleep(noWait))
	reviews := s.FetchReviews(context.Background(), "tt0133093", 5)

	require.Len(t, reviews, 3)
	assert.Equal(t, "Extra review.", reviews[2].Content)
	assert.Contains(t, userAgents, gotUA)
	assert.True(t, strings.HasPrefix(gotLang, "en-US"))
	assert.Equal(t, "https://www.google.com/", gotReferer)
}

func TestFetchReviewsDecodesBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte(reviewPage))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	s := NewReviewScraper(ScrapeConfig{BaseURL: srv.URL}, WithSleep(noWait))
	assert.Len(t, s.FetchReviews(context.Background(), "tt1", 1), 1)
}

func TestFetchReviewsFailureIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewReviewScraper(ScrapeConfig{BaseURL: srv.URL}, WithSleep(noWait))
	reviews := s.FetchReviews(context.Background(), "tt0133093", 5)
	assert.NotNil(t, reviews)
	assert.Empty(t, reviews)
}

func TestFetchReviewsFallsBackToRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div id="root"></div></body></html>`))
	}))
	defer srv.Close()

	var rendered string
	s := NewReviewScraper(ScrapeConfig{BaseURL: srv.URL, RenderJS: true},
		WithSleep(noWait),
		WithRenderer(func(_ context.Context, url string, _ time.Duration) (string, error) {
			rendered = url
			return reviewPage, nil
		}))

	reviews := s.FetchReviews(context.Background(), "tt0468569", 1)
	require.Len(t, reviews, 1)
	assert.Equal(t, srv.URL+"/title/tt0468569/reviews", rendered)
}

func TestFetchReviewsHonoursCancelledWait(t *testing.T) {
	s := NewReviewScraper(ScrapeConfig{JitterMin: time.Hour, JitterMax: 2 * time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, s.FetchReviews(ctx, "tt0133093", 5))
}

func TestJitterStaysInRange(t *testing.T) {
	s := NewReviewScraper(ScrapeConfig{JitterMin: 2 * time.Second, JitterMax: 4 * time.Second})
	for i := 0; i < 50; i++ {
		d := s.jitter()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 4*time.Second)
	}
}

func TestSchedulerRegistersCronJob(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.ScheduleCron("refresh", "0 3 * * *", func() {}))
	assert.Equal(t, []string{"refresh"}, s.Tags())
	require.NoError(t, s.Remove("refresh"))
	assert.Empty(t, s.Tags())
}

func TestSchedulerRejectsDuplicateTag(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.ScheduleEvery("imdb", time.Hour, func() {}))
	assert.Error(t, s.ScheduleEvery("imdb", time.Hour, func() {}))
	assert.Error(t, s.ScheduleCron("bad", "not a cron", func() {}))
}

func TestFetchReviewsRepeatedTargetIsFetchedAgain(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(reviewPage))
	}))
	defer srv.Close()

	s := NewReviewScraper(ScrapeConfig{BaseURL: srv.URL}, WithSleep(noWait))
	assert.Len(t, s.FetchReviews(context.Background(), "tt0133093", 5), 3)
	assert.Len(t, s.FetchReviews(context.Background(), "tt0133093", 5), 3)
	assert.Equal(t, 2, hits)
}
