package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	queueport "dormlink/internal/infrastructure/queue/port"

	"dormlink/internal/infrastructure/identity"
	chat "dormlink/internal/pkg/chat/application/domain"
	"dormlink/internal/pkg/chat/application/task"

	"github.com/gin-gonic/gin"
)

// SendMessageController handles the REST send-message endpoint only (one
// controller per endpoint). The append itself runs on the chat queue; the
// realtime path over the websocket stays synchronous.
type SendMessageController struct {
	Q queueport.Client
}

func NewSendMessageController(client queueport.Client) *SendMessageController {
	return &SendMessageController{Q: client}
}

// sendMessageRequest is the DTO for the HTTP request body.
type sendMessageRequest struct {
	Text string `json:"message_text" binding:"required"`
}

// Handle returns a gin handler that enqueues a background task to append a
// message. Shallow validation happens here so obviously bad requests fail
// fast; membership and persistence checks run in the worker.
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity.FromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if utf8.RuneCountInString(req.Text) > chat.MaxMessageLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": chat.ErrMessageTooLong.Error()})
			return
		}

		payload := task.AppendMessageTaskPayload{
			ConversationID: conversationID,
			SenderRole:     string(who.Role),
			SenderID:       who.UserID,
			Text:           req.Text,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode task payload"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		opts := queueport.EnqueueOption{Queue: task.QueueChat, MaxRetry: 20}
		id, err := h.Q.Enqueue(ctx, queueport.Task{Type: task.AppendMessageTaskType, Payload: b}, opts)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue message"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":          "queued",
			"task_id":         id,
			"conversation_id": conversationID,
			"sender_id":       who.UserID,
		})
	}
}
