package routes

import (
	"errors"
	"net/http"
	"strconv"

	"cinemind/internal/logger"
	"cinemind/middleware"
	"cinemind/models"
	"cinemind/services"
	"cinemind/utils"

	"github.com/gin-gonic/gin"
)

const defaultIngestLimit = 5

type ingestRequest struct {
	Source string `json:"source" binding:"required"`
	Limit  *int   `json:"limit" binding:"omitempty,min=1,max=50"`
}

// SetupIngestRoutes exposes job submission, listing and cancellation. All of
// them require an admin token when auth is configured.
func SetupIngestRoutes(api *gin.RouterGroup, jobs JobManager, authMiddleware *middleware.AuthMiddleware) {
	ingest := api.Group("/ingest")
	ingest.Use(authMiddleware.RequireAdmin())

	ingest.POST("", func(c *gin.Context) {
		var req ingestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		limit := defaultIngestLimit
		if req.Limit != nil {
			limit = *req.Limit
		}

		job, err := jobs.Submit(c.Request.Context(), models.IngestTarget(req.Source), limit)
		switch {
		case errors.Is(err, services.ErrInvalidTarget):
			utils.RespondWithBadRequest(c, "Unknown ingest source", gin.H{
				"source":  req.Source,
				"allowed": []models.IngestTarget{models.TargetTMDb, models.TargetIMDb, models.TargetScript, models.TargetAll},
			})
			return
		case err != nil && job != nil:
			utils.RespondWithError(c, http.StatusServiceUnavailable, "dispatch_failed",
				"Ingestion job could not be started", gin.H{"job_id": job.JobID})
			return
		case err != nil:
			logger.Error("submit ingest job failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to create ingestion job", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":  "accepted",
			"job_id":  job.JobID,
			"source":  string(job.Target),
			"limit":   job.Limit,
			"backend": jobs.Backend(),
			"message": "Ingestion started for " + string(job.Target) + ", limit " + strconv.Itoa(job.Limit),
		})
	})

	ingest.GET("/jobs", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		list, err := jobs.List(c.Request.Context(), limit)
		if err != nil {
			logger.Error("list ingest jobs failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to list jobs", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": list, "count": len(list)})
	})

	ingest.GET("/jobs/:id", func(c *gin.Context) {
		job, err := jobs.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	})

	ingest.DELETE("/jobs/:id", func(c *gin.Context) {
		job, err := jobs.Cancel(c.Request.Context(), c.Param("id"))
		if errors.Is(err, services.ErrJobFinished) {
			utils.RespondWithConflict(c, "job_finished", "Job already finished", gin.H{"status": job.Status})
			return
		}
		if err != nil {
			respondJobError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	})
}

func respondJobError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrJobNotFound) {
		utils.RespondWithNotFound(c, "Job not found")
		return
	}
	logger.Error("ingest job lookup failed", "error", err)
	utils.RespondWithInternalError(c, "Failed to load job", nil)
}
