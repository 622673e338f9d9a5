package middleware

import (
	"net/http"

	"cinemind/utils"

	"github.com/gin-gonic/gin"
)

// MaxRequestBody bounds JSON bodies on the API. Queries and ingest requests
// are a few hundred bytes.
const MaxRequestBody int64 = 1 << 20

// RequestSizeLimit answers 413 when Content-Length exceeds limit and wraps the
// body so chunked uploads stop at limit as well.
func RequestSizeLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if size := c.Request.ContentLength; size > limit {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large",
				"Request body too large", gin.H{"limit_bytes": limit, "content_length": size})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
