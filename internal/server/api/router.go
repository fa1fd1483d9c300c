package api

import (
	"github.com/gin-gonic/gin"

	"finsight/pkg/ratelimiter"
)

// SetupRouter wires every route of the service onto a gin engine.
// newLimiter builds one rate limiter per chat client; pass nil to
// disable rate limiting (tests do).
func SetupRouter(h *Handler, authn Authenticator, newLimiter func() ratelimiter.RateLimiter) *gin.Engine {
	r := gin.Default()
	r.Use(TraceMiddleware())

	authMiddleware := AuthMiddleware(authn)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/health", h.Health)

		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.POST("/logout", authMiddleware, h.Logout)
		}

		chat := apiV1.Group("/chat")
		chat.Use(authMiddleware)
		if newLimiter != nil {
			chat.Use(RateLimitMiddleware(newLimiter))
		}
		{
			chat.POST("", h.Chat)
		}

		companies := apiV1.Group("/companies")
		companies.Use(authMiddleware)
		{
			companies.GET("", h.Companies)
			companies.GET("/:id/metrics", h.CompanyMetrics)
		}

		apiV1.POST("/upload", authMiddleware, h.Upload)
	}

	return r
}
