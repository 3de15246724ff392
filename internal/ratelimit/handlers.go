package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleRateLimitStatus reports the limiter configuration and backend state
// for the requesting IP without consuming a token
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ip": c.ClientIP(),
			"limits": gin.H{
				"ip_per_minute": gin.H{
					"limit":  rl.config.PerMinute,
					"period": "1 minute",
				},
			},
			"backend":   rl.GetStats(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
