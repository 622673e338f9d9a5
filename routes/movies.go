package routes

import (
	"net/http"
	"strconv"

	"cinemind/services"
	"cinemind/utils"

	"github.com/gin-gonic/gin"
)

const movieDocumentsLimit = 20

type movieResponse struct {
	MovieID     string         `json:"movie_id"`
	Title       string         `json:"title"`
	Year        int            `json:"year,omitempty"`
	SourceCount int            `json:"source_count"`
	BySource    map[string]int `json:"by_source"`
	Documents   []movieDoc     `json:"documents"`
}

type movieDoc struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// SetupMovieRoutes serves the documents stored for one movie id.
func SetupMovieRoutes(api *gin.RouterGroup, inspector *services.IndexInspector) {
	api.GET("/movies/:movie_id", func(c *gin.Context) {
		movieID := c.Param("movie_id")
		records := inspector.MovieDocuments(c.Request.Context(), movieID, 0)
		if len(records) == 0 {
			utils.RespondWithNotFound(c, "Movie not found: "+movieID)
			return
		}

		first := records[0].Metadata
		resp := movieResponse{
			MovieID:     movieID,
			Title:       "Unknown",
			SourceCount: len(records),
			BySource:    map[string]int{},
		}
		if title, ok := first["movie_title"].(string); ok && title != "" {
			resp.Title = title
		}
		if year, ok := first["movie_year"].(float64); ok {
			resp.Year = int(year)
		}

		keep := movieDocumentsLimit
		if v, err := strconv.Atoi(c.Query("documents")); err == nil && v >= 0 {
			keep = v
		}
		resp.Documents = make([]movieDoc, 0, min(keep, len(records)))
		for _, r := range records {
			if src, ok := r.Metadata["source"].(string); ok {
				resp.BySource[src]++
			}
			if len(resp.Documents) < keep {
				resp.Documents = append(resp.Documents, movieDoc{ID: r.ID, Content: r.Document, Metadata: r.Metadata})
			}
		}
		c.JSON(http.StatusOK, resp)
	})
}
