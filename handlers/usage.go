package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UsageHandler reports quota state for the calling identity
// @Summary      Get usage info
// @Description  Returns the caller's tier and, for demo users, queries used/remaining in the current rolling window
// @Tags         Usage
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.UsageResponse  "Usage info"
// @Failure      401  {object}  map[string]string     "Invalid credential"
// @Router       /api/usage [get]
func (h *Handlers) UsageHandler(c *gin.Context) {
	identity, tier := callerIdentity(c)
	c.JSON(http.StatusOK, h.limiter.Usage(identity, tier))
}
