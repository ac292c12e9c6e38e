package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hoopsight/models"
)

const (
	ctxTier     = "tier"
	ctxIdentity = "identity"
)

// Identify resolves the caller's tier and identity before any handler runs.
// A valid bearer credential makes the caller admin; an invalid one is a
// distinct authentication failure, never conflated with rate limiting.
// Anonymous callers are demo tier, keyed by client IP.
func (h *Handlers) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")

		if authorization != "" {
			token := strings.TrimPrefix(authorization, "Bearer ")
			if h.adminAPIKey != "" && token == h.adminAPIKey {
				c.Set(ctxTier, models.TierAdmin)
				c.Set(ctxIdentity, "admin")
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Set(ctxTier, models.TierDemo)
		c.Set(ctxIdentity, c.ClientIP())
		c.Next()
	}
}

func callerIdentity(c *gin.Context) (identity string, tier string) {
	return c.GetString(ctxIdentity), c.GetString(ctxTier)
}
