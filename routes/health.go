package routes

import (
	"fmt"
	"net/http"

	"cinemind/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type healthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// SetupHealthRoutes probes the index and the sentiment service concurrently.
// The endpoint always answers 200; a failed probe turns the status to
// "degraded".
func SetupHealthRoutes(api *gin.RouterGroup, deps Dependencies) {
	api.GET("/health", func(c *gin.Context) {
		ctx, cancel := utils.WithProbeTimeout(c.Request.Context())
		defer cancel()

		var (
			documents   = -1
			sentimentUp bool
		)
		g, gctx := errgroup.WithContext(ctx)
		if deps.Inspector != nil {
			g.Go(func() error {
				documents = deps.Inspector.Count(gctx)
				return nil
			})
		}
		if deps.Sentiment != nil {
			g.Go(func() error {
				sentimentUp = deps.Sentiment.Health(gctx)
				return nil
			})
		}
		_ = g.Wait()

		resp := healthResponse{Status: "healthy", Version: APIVersion, Services: map[string]string{}}
		if documents >= 0 {
			resp.Services["vector_store"] = fmt.Sprintf("ok (%d documents)", documents)
		} else {
			resp.Services["vector_store"] = "error: not configured"
		}
		switch {
		case deps.Sentiment == nil:
			resp.Services["sentiment"] = "disabled"
		case sentimentUp:
			resp.Services["sentiment"] = "ok"
		default:
			resp.Services["sentiment"] = "error: unreachable"
		}
		if deps.Jobs != nil {
			resp.Services["jobs"] = "ok (" + deps.Jobs.Backend() + ")"
		}

		if documents < 0 || (deps.Sentiment != nil && !sentimentUp) {
			resp.Status = "degraded"
		}
		c.JSON(http.StatusOK, resp)
	})
}
