package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (m *MiddlewareManager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := m.auth.ValidateTokenJWT(c, c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Set("user_id", userID)

		c.Next()
	}
}

// RequireDeviceKey authenticates firmware endpoints with the shared
// device key header. An empty configured key disables the check for
// local development.
func (m *MiddlewareManager) RequireDeviceKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.deviceKey == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-Device-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.deviceKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
