package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTMDbTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/popular", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "en-US", r.URL.Query().Get("language"))
		w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix"},{"id":27205,"title":"Inception"}]}`))
	})
	mux.HandleFunc("/movie/603", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "credits", r.URL.Query().Get("append_to_response"))
		w.Write([]byte(`{
			"id": 603, "title": "The Matrix", "release_date": "1999-03-30",
			"overview": "A hacker learns the truth.", "poster_path": "/p.jpg",
			"runtime": 136, "vote_average": 8.2,
			"genres": [{"name": "Action"}, {"name": "Science Fiction"}],
			"credits": {"crew": [{"job": "Producer", "name": "Joel Silver"}, {"job": "Director", "name": "Lana Wachowski"}]}
		}`))
	})
	mux.HandleFunc("/movie/603/reviews", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(`{"page":1,"total_pages":2,"results":[
				{"id":"r1","author":"neo","content":"Great","created_at":"2020-01-02T03:04:05.000Z","author_details":{"rating":9}},
				{"id":"r2","author":"empty","content":"   "}
			]}`))
		default:
			w.Write([]byte(`{"page":2,"total_pages":2,"results":[{"id":"r3","author":"smith","content":"Inevitable","author_details":{"rating":null}}]}`))
		}
	})
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "nothing" {
			w.Write([]byte(`{"results":[]}`))
			return
		}
		w.Write([]byte(`{"results":[{"id":603}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTMDbPopularAndDetails(t *testing.T) {
	srv := newTMDbTestServer(t)
	c := NewTMDbClient(srv.URL, "test-key", "", 100)
	ctx := context.Background()

	popular, err := c.PopularMovies(ctx, 1)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, 603, popular[0].ID)

	movie, err := c.GetMovie(ctx, 603)
	require.NoError(t, err)
	assert.Equal(t, "the-matrix-1999", movie.MovieID)
	assert.Equal(t, "Lana Wachowski", movie.Director)
	assert.Equal(t, 1999, movie.Year)
	assert.Equal(t, []string{"Action", "Science Fiction"}, movie.Genres)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/p.jpg", movie.PosterURL)
	require.NotNil(t, movie.Rating)
	assert.Equal(t, 8.2, *movie.Rating)
}

func TestTMDbReviewsPagingSkipsEmpty(t *testing.T) {
	srv := newTMDbTestServer(t)
	c := NewTMDbClient(srv.URL, "test-key", "en-US", 100)

	reviews, err := c.GetReviews(context.Background(), 603, "the-matrix-1999", 3)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "r1", reviews[0].ReviewID)
	assert.Equal(t, "the-matrix-1999", reviews[0].MovieID)
	require.NotNil(t, reviews[0].Rating)
	assert.Equal(t, 9.0, *reviews[0].Rating)
	require.NotNil(t, reviews[0].Date)
	assert.Equal(t, 2020, reviews[0].Date.Year())
	assert.Nil(t, reviews[1].Rating)

	one, err := c.GetReviews(context.Background(), 603, "the-matrix-1999", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestTMDbSearchAndErrors(t *testing.T) {
	srv := newTMDbTestServer(t)
	c := NewTMDbClient(srv.URL, "test-key", "en-US", 100)
	ctx := context.Background()

	id, err := c.SearchMovie(ctx, "matrix")
	require.NoError(t, err)
	assert.Equal(t, 603, id)

	id, err = c.SearchMovie(ctx, "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	_, err = c.GetMovie(ctx, 999)
	assert.Error(t, err)
}
