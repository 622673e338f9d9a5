package routes

import (
	"context"

	"cinemind/internal/config"
	"cinemind/middleware"
	"cinemind/models"
	"cinemind/services"

	"github.com/gin-gonic/gin"
)

// APIVersion is reported by /health and tagged on traces.
const APIVersion = "1.0.0"

// QueryAnswerer answers questions over the index.
type QueryAnswerer interface {
	Query(ctx context.Context, question string, limit int, filter *models.SourceKind) (*services.RAGResponse, error)
	QueryMovie(ctx context.Context, title, question string) (*services.RAGResponse, error)
}

// JobManager submits and tracks ingestion jobs.
type JobManager interface {
	Submit(ctx context.Context, target models.IngestTarget, limit int) (*models.IngestJob, error)
	Get(ctx context.Context, id string) (*models.IngestJob, error)
	List(ctx context.Context, limit int) ([]models.IngestJob, error)
	Cancel(ctx context.Context, id string) (*models.IngestJob, error)
	Backend() string
}

// HealthProber reports whether a dependency answers.
type HealthProber interface {
	Health(ctx context.Context) bool
}

// Dependencies are the services the HTTP layer talks to.
type Dependencies struct {
	RAG       QueryAnswerer
	Jobs      JobManager
	Inspector *services.IndexInspector
	Export    *services.ExportService
	Sentiment HealthProber
}

// SetupRoutes mounts every /api/v1 endpoint on router.
func SetupRoutes(router *gin.Engine, cfg *config.Config, deps Dependencies, authMiddleware *middleware.AuthMiddleware) *gin.RouterGroup {
	api := router.Group("/api/v1")

	SetupHealthRoutes(api, deps)
	SetupQueryRoutes(api, deps.RAG)
	SetupMovieRoutes(api, deps.Inspector)
	SetupAuthRoutes(api, cfg)
	SetupIngestRoutes(api, deps.Jobs, authMiddleware)
	SetupAdminRoutes(api, deps.Inspector, deps.Export, authMiddleware)

	return api
}
