package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/halide-works/aperture-drop/internal/api/middleware"
	"github.com/halide-works/aperture-drop/internal/ratelimit"
)

// SetupRoutes registers all REST endpoints on the router
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig, limiter ratelimit.Limiter) {
	// Operational endpoints (no auth, no version prefix, no rate limit)
	router.GET("/health", handler.HealthCheck)
	router.GET("/live", handler.Live)
	router.GET("/ready", handler.Ready)
	router.GET("/metrics", handler.Metrics)

	// API v1 routes
	v1 := router.Group("/api/v1")
	general := middleware.RateLimit(limiter, ratelimit.ClassGeneral)
	claim := middleware.RateLimit(limiter, ratelimit.ClassClaim)
	{
		// Claim submission has its own much tighter budget
		v1.POST("/submit-observation", general, claim, handler.SubmitObservation)

		// Public read access
		v1.GET("/available-tokens", general, handler.AvailableTokens)
		v1.GET("/has-claimed/:address", general, handler.HasClaimed)
		v1.GET("/observation/:tokenId", general, handler.GetObservation)
		v1.GET("/observations", general, handler.ListObservations)
		v1.GET("/tx-status/:handle", general, handler.TxStatus)

		// Admin endpoints (requires authentication)
		admin := v1.Group("/admin", middleware.Auth(authCfg))
		admin.POST("/trust-gate/reset/:origin", handler.ResetTrustGate)
		admin.POST("/observations/invalidate", handler.InvalidateObservations)
	}
}
