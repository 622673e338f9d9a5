package routes

import (
	"bytes"
	"net/http"
	"strconv"

	"cinemind/internal/logger"
	"cinemind/middleware"
	"cinemind/services"
	"cinemind/utils"

	"github.com/gin-gonic/gin"
)

// SetupAdminRoutes exposes inspection, spreadsheet export and index reset.
func SetupAdminRoutes(api *gin.RouterGroup, inspector *services.IndexInspector, export *services.ExportService, authMiddleware *middleware.AuthMiddleware) {
	admin := api.Group("/admin")
	admin.Use(authMiddleware.RequireAdmin())

	admin.GET("/stats", func(c *gin.Context) {
		sample, _ := strconv.Atoi(c.DefaultQuery("sample", "0"))
		c.JSON(http.StatusOK, inspector.Stats(c.Request.Context(), sample))
	})

	admin.GET("/export", func(c *gin.Context) {
		ctx, cancel := utils.WithExportTimeout(c.Request.Context())
		defer cancel()

		var buf bytes.Buffer
		rows, err := export.WriteXLSX(ctx, &buf)
		if err != nil {
			logger.Error("index export failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to export the index", nil)
			return
		}
		logger.Info("index exported", "documents", rows)
		c.Header("Content-Disposition", `attachment; filename="`+export.ExportFileName()+`"`)
		c.Data(http.StatusOK, services.ExportContentType, buf.Bytes())
	})

	admin.POST("/reset", func(c *gin.Context) {
		ctx, cancel := utils.WithExportTimeout(c.Request.Context())
		defer cancel()

		before := inspector.Count(ctx)
		if err := inspector.Reset(ctx); err != nil {
			logger.Error("index reset failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to reset the index", nil)
			return
		}
		logger.Warn("index reset", "removed", before)
		c.JSON(http.StatusOK, gin.H{"status": "reset", "removed": before})
	})
}
