package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hoopsight/models"
)

// ChatHandler handles one conversational turn
// @Summary      Send a chat message
// @Description  Send a natural-language message; data questions are answered from the statistics database, optionally with generated SQL, a result summary and a chart spec in the metadata
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      models.ChatRequest   true  "Chat request"
// @Success      200      {object}  models.ChatResponse  "Assistant reply"
// @Failure      400      {object}  map[string]string    "Invalid request"
// @Failure      401      {object}  map[string]string    "Invalid credential"
// @Failure      429      {object}  map[string]string    "Quota exceeded"
// @Router       /api/chat [post]
func (h *Handlers) ChatHandler(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	identity, tier := callerIdentity(c)

	// Quota is consumed on every accepted attempt, before the turn runs;
	// a failed generation downstream still used a language-model call.
	decision := h.limiter.CheckAndIncrement(identity, tier)
	if !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               "Demo limit reached. Please wait or sign in for more access.",
			"queries_remaining":   decision.Remaining,
			"retry_after_seconds": int(decision.RetryAfter.Seconds()) + 1,
		})
		return
	}

	log.Printf("[CHAT HANDLER] Identity: %s (%s), Conversation: %s, Message: %s", identity, tier, req.ConversationID, req.Message)

	// Once accepted, the turn runs to completion; client disconnects do
	// not cancel it.
	result := h.orchestrator.HandleTurn(context.Background(), req.ConversationID, req.Message, req.History)

	c.JSON(http.StatusOK, models.ChatResponse{
		Message:        result.Reply,
		ConversationID: result.ConversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Metadata:       result.Metadata,
	})
}
