package routes

import (
	"net/http"

	"cinemind/internal/logger"
	"cinemind/models"
	"cinemind/services"
	"cinemind/utils"

	"github.com/gin-gonic/gin"
)

type queryRequest struct {
	Question     string `json:"question" binding:"required,min=3,max=500"`
	SourceFilter string `json:"source_filter"`
	Limit        *int   `json:"limit" binding:"omitempty,min=1,max=50"`
	// MovieTitle scopes the question to one film and adds its catalog card.
	MovieTitle string `json:"movie_title" binding:"omitempty,max=200"`
}

type sourceDocument struct {
	Content    string            `json:"content"`
	Source     models.SourceKind `json:"source"`
	MovieTitle string            `json:"movie_title"`
	Distance   float64           `json:"distance"`
}

type queryResponse struct {
	Answer      string           `json:"answer"`
	Sources     []sourceDocument `json:"sources"`
	Query       string           `json:"query"`
	SourceCount int              `json:"source_count"`
	Movie       *models.Movie    `json:"movie,omitempty"`
}

func SetupQueryRoutes(api *gin.RouterGroup, rag QueryAnswerer) {
	api.POST("/query", func(c *gin.Context) {
		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		var filter *models.SourceKind
		if req.SourceFilter != "" {
			kind, ok := models.ParseSourceKind(req.SourceFilter)
			if !ok {
				utils.RespondWithBadRequest(c, "Unknown source_filter", gin.H{
					"source_filter": req.SourceFilter,
					"allowed":       []models.SourceKind{models.SourceTMDb, models.SourceIMDb, models.SourceScript},
				})
				return
			}
			filter = &kind
		}
		limit := services.DefaultQueryLimit
		if req.Limit != nil {
			limit = *req.Limit
		}

		var (
			resp *services.RAGResponse
			err  error
		)
		if req.MovieTitle != "" {
			resp, err = rag.QueryMovie(c.Request.Context(), req.MovieTitle, req.Question)
		} else {
			resp, err = rag.Query(c.Request.Context(), req.Question, limit, filter)
		}
		if err != nil {
			logger.Error("query failed", "error", err, "request_id", c.GetString("request_id"))
			utils.RespondWithInternalError(c, "Failed to answer the question", nil)
			return
		}

		out := queryResponse{Answer: resp.Answer, Query: resp.Query, Movie: resp.Movie, Sources: make([]sourceDocument, 0, len(resp.Sources))}
		for _, d := range resp.Sources {
			out.Sources = append(out.Sources, sourceDocument{
				Content:    d.Text,
				Source:     d.Source,
				MovieTitle: d.MovieTitle,
				Distance:   d.Distance,
			})
		}
		out.SourceCount = len(out.Sources)
		c.JSON(http.StatusOK, out)
	})
}
