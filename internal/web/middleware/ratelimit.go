package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Firmware polls every few seconds; anything past this is a stuck
// device or a misbehaving client.
const (
	deviceRatePerSecond = 5
	deviceRateBurst     = 10
)

func (m *MiddlewareManager) deviceLimiter(deviceID string) *rate.Limiter {
	m.limiterMux.Lock()
	defer m.limiterMux.Unlock()
	limiter, ok := m.limiters[deviceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(deviceRatePerSecond), deviceRateBurst)
		m.limiters[deviceID] = limiter
	}
	return limiter
}

// DeviceRateLimit throttles device endpoints per device id. Requests
// without a device id in the path share one bucket per client IP.
func (m *MiddlewareManager) DeviceRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("device_id")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !m.deviceLimiter(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
