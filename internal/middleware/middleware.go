package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"items-api/internal/config"
	"items-api/internal/models"
	"items-api/pkg/logger"
)

// UserKey is the gin context key under which the resolved current user is stored.
const UserKey = "user"

// UserLoader resolves a user row by id.
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// RequestID tags each request context with a generated id for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		ctx := logger.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Auth validates the bearer token and loads the current active user into the
// gin context. The JWT subject is the user id.
func Auth(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if header == "" || !strings.HasPrefix(header, prefix) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated!"})
			logger.Debug(ctx, "Missing or invalid Authorization header")
			c.Abort()
			return
		}
		tokenStr := strings.TrimSpace(header[len(prefix):])
		secret := config.GetJWTSecret(ctx)
		if secret == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server misconfiguration"})
			c.Abort()
			return
		}
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated!"})
			logger.Debug(ctx, "JWT parse failed", "error", err)
			c.Abort()
			return
		}
		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated!"})
			c.Abort()
			return
		}
		user, err := users.GetUser(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve user"})
			c.Abort()
			return
		}
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated!"})
			c.Abort()
			return
		}
		if !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Inactive user!"})
			c.Abort()
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}
