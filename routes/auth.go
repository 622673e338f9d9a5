package routes

import (
	"net/http"

	"cinemind/internal/config"
	"cinemind/internal/logger"
	"cinemind/utils"

	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetupAuthRoutes issues admin tokens against the configured bcrypt hash.
func SetupAuthRoutes(api *gin.RouterGroup, cfg *config.Config) {
	auth := api.Group("/auth")

	auth.POST("/token", func(c *gin.Context) {
		if !cfg.AuthEnabled() {
			utils.RespondWithServiceUnavailable(c, "Admin authentication is not configured")
			return
		}

		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if req.Username != cfg.AdminUsername || !utils.CheckPassword(req.Password, cfg.AdminPasswordHash) {
			logger.Warn("admin login rejected", "username", req.Username, "client_ip", c.ClientIP())
			utils.RespondWithUnauthorized(c, "Invalid credentials")
			return
		}

		token, err := utils.GenerateJWT(req.Username, utils.RoleAdmin, cfg.JWTSecret, cfg.JWTExpiresIn)
		if err != nil {
			logger.Error("token signing failed", "error", err)
			utils.RespondWithInternalError(c, "Failed to issue token", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int(cfg.JWTExpiresIn.Seconds()),
		})
	})
}
