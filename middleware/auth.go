package middleware

import (
	"net/http"
	"strings"
	"time"

	"patient-qa-platform/internal/auth"
	"patient-qa-platform/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type AuthMiddleware struct {
	config *config.Config
	rdb    *redis.Client
}

func NewAuthMiddleware(cfg *config.Config, rdb *redis.Client) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		rdb:    rdb,
	}
}

// RequireAuth validates the access token from the Authorization header or
// the access_token cookie. An expired access token with a valid refresh
// cookie is silently rolled over to a fresh pair.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Authentication token is required",
			})
			c.Abort()
			return
		}

		claims, err := auth.ValidateAccessToken(tokenString, a.rdb)
		if err != nil {
			claims = a.tryRefresh(c)
			if claims == nil {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error_code": "session_expired",
					"message":    "Your session has expired. Please log in again.",
				})
				c.Abort()
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("claims", claims)

		c.Next()
	}
}

// tryRefresh rotates the refresh token and sets fresh cookies. Returns nil
// when no valid refresh token is available.
func (a *AuthMiddleware) tryRefresh(c *gin.Context) *auth.Claims {
	refreshToken, err := c.Cookie("refresh_token")
	if err != nil || refreshToken == "" {
		return nil
	}

	refreshClaims, err := auth.ValidateRefreshToken(refreshToken, a.rdb)
	if err != nil {
		return nil
	}

	// Rotate: old refresh token is dead once used
	_ = auth.RevokeToken(refreshClaims.ID, true, a.rdb)

	tokenPair, err := auth.IssueTokenPair(refreshClaims.UserID, refreshClaims.Role, a.rdb)
	if err != nil {
		return nil
	}

	secure := a.config.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", tokenPair.AccessToken, int(time.Hour.Seconds()), "/", "", secure, true)
	c.SetCookie("refresh_token", tokenPair.RefreshToken, int(7*24*time.Hour.Seconds()), "/", "", secure, true)

	claims, err := auth.ValidateAccessToken(tokenPair.AccessToken, a.rdb)
	if err != nil {
		return nil
	}
	return claims
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}

// Helper function to check if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("user_id")
	return exists
}

// Helper function to get user ID from context
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// Helper function to get role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(string); ok {
			return r
		}
	}
	return ""
}
