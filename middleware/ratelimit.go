package middleware

import (
	"strconv"
	"time"

	"cinemind/internal/config"
	"cinemind/internal/logger"
	"cinemind/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const adminRateMultiplier = 10

// RateLimitMiddleware counts requests per client IP and route in fixed Redis
// windows. Admin tokens get a larger allowance. Redis errors let the request
// through.
func RateLimitMiddleware(rdb redis.UniversalClient, cfg *config.Config) gin.HandlerFunc {
	window := time.Duration(cfg.RateLimitWindow) * time.Second
	return func(c *gin.Context) {
		if rdb == nil || cfg.RateLimitReqs <= 0 || c.FullPath() == healthPath {
			c.Next()
			return
		}

		limit := cfg.RateLimitReqs
		scope := "anon"
		if claims := GetClaims(c); claims != nil && claims.Role == utils.RoleAdmin {
			limit *= adminRateMultiplier
			scope = utils.RoleAdmin
		}
		key := "cinemind:ratelimit:" + scope + ":" + c.ClientIP() + ":" + c.FullPath()

		ctx, cancel := utils.WithProbeTimeout(c.Request.Context())
		defer cancel()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit check failed", "error", err, "request_id", GetRequestID(c))
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(window).Unix(), 10))
			utils.RespondWithTooManyRequests(c, "Too many requests. Please try again later.", gin.H{
				"retry_after": cfg.RateLimitWindow,
				"limit":       limit,
			})
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
