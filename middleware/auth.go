package middleware

import (
	"cinemind/internal/config"
	"cinemind/utils"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

type AuthMiddleware struct {
	config *config.Config
}

func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{config: cfg}
}

// OptionalAuth attaches claims when a valid bearer token is sent and never
// rejects the request.
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.config.JWTSecret != "" {
			if token := utils.ExtractTokenFromHeader(c.GetHeader("Authorization")); token != "" {
				if claims, err := utils.ValidateJWT(token, a.config.JWTSecret); err == nil {
					c.Set(claimsKey, claims)
				}
			}
		}
		c.Next()
	}
}

// RequireAdmin guards ingestion and index management. With no admin
// credentials configured every caller is let through.
func (a *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.config.AuthEnabled() {
			c.Next()
			return
		}

		claims := GetClaims(c)
		if claims == nil {
			token := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
			if token == "" {
				utils.RespondWithUnauthorized(c, "Authentication token is required")
				c.Abort()
				return
			}
			parsed, err := utils.ValidateJWT(token, a.config.JWTSecret)
			if err != nil {
				utils.RespondWithUnauthorized(c, "Invalid or expired token")
				c.Abort()
				return
			}
			claims = parsed
			c.Set(claimsKey, claims)
		}

		if claims.Role != utils.RoleAdmin {
			utils.RespondWithForbidden(c, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetClaims returns the verified token claims, or nil.
func GetClaims(c *gin.Context) *utils.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*utils.Claims)
	return claims
}
