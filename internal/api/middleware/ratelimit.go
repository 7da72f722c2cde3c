package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/halide-works/aperture-drop/internal/ratelimit"
)

// RateLimit enforces the class budget per client IP. Over-budget requests
// get 429 with a Retry-After header.
func RateLimit(limiter ratelimit.Limiter, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := limiter.Allow(c.Request.Context(), c.ClientIP(), class)
		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := decision.RetryAfter
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds()+0.5)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":    "rate_limited",
				"message": "Too many requests",
			},
		})
	}
}
