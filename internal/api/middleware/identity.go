package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tobk/ytvault/internal/logger"
)

// UserHeader names the header carrying the caller identity. Authentication
// itself happens upstream (reverse proxy or gateway); the service only
// needs a stable per-user key for ownership checks and quotas.
const UserHeader = "X-Vault-User"

const userContextKey = "user_id"

// RequireUser returns a middleware that rejects requests without a caller
// identity and stores the identity for handlers and log lines.
// Parameters: none.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing " + UserHeader + " header",
			})
			return
		}

		c.Set(userContextKey, userID)
		ctx := logger.SetUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// UserID returns the caller identity set by RequireUser.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - string: user ID, empty when RequireUser did not run.
func UserID(c *gin.Context) string {
	return c.GetString(userContextKey)
}
