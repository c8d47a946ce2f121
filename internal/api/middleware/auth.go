// Package middleware provides Gin middleware for the gateway's inbound
// request handling.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lingyicute/openai-gemini/internal/api/handlers"
)

// APIKeyAuth validates the inbound client credential against the configured
// key list. An empty key list disables authentication. The credential is
// accepted from Authorization: Bearer, x-api-key, or x-goog-api-key.
func APIKeyAuth(getKeys func() []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := getKeys()
		if len(keys) == 0 {
			c.Next()
			return
		}
		provided := clientKey(c)
		for _, key := range keys {
			if key != "" && provided == key {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.ErrorResponse{Error: handlers.ErrorDetail{
			Message: "invalid api key",
			Type:    "authentication_error",
		}})
	}
}

func clientKey(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if key := strings.TrimSpace(c.GetHeader("x-api-key")); key != "" {
		return key
	}
	return strings.TrimSpace(c.GetHeader("x-goog-api-key"))
}
