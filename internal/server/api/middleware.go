package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"finsight/pkg/ratelimiter"
)

const (
	contextUserIDKey  = "userID"
	contextTraceIDKey = "traceID"
	traceHeader       = "X-Request-ID"
)

// TraceMiddleware assigns every request a trace ID, honoring one the
// client already sent, and echoes it back in the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		c.Set(contextTraceIDKey, traceID)
		c.Header(traceHeader, traceID)
		c.Next()
	}
}

// Authenticator validates a bearer token and resolves the user it
// belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uint, error)
}

// AuthMiddleware validates the Authorization header and stores the
// authenticated user ID in the request context.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			c.Abort()
			return
		}

		userID, err := authn.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

// currentUserID reads the user ID the auth middleware stored.
func currentUserID(c *gin.Context) (uint, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}

// RateLimitMiddleware applies a per-client token bucket, keyed by the
// authenticated user when present and the client IP otherwise.
func RateLimitMiddleware(newLimiter func() ratelimiter.RateLimiter) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]ratelimiter.RateLimiter)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := currentUserID(c); ok {
			key = "user:" + strconv.FormatUint(uint64(userID), 10)
		}

		mu.Lock()
		limiter, ok := limiters[key]
		if !ok {
			limiter = newLimiter()
			limiters[key] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
			c.Abort()
			return
		}
		c.Next()
	}
}
