package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dormlink/internal/infrastructure/identity"
	chat "dormlink/internal/pkg/chat/application/domain"
	"dormlink/internal/pkg/chat/application/notify"
	"dormlink/internal/pkg/chat/application/usecase"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
)

// GetMessagesController returns a conversation's full history, oldest first
// (one controller per endpoint).
type GetMessagesController struct {
	UC *usecase.GetMessagesUseCase
}

func NewGetMessagesController(repo repository.ChatRepository) *GetMessagesController {
	return &GetMessagesController{UC: usecase.NewGetMessagesUseCase(repo)}
}

func (h *GetMessagesController) Handle() gin.HandlerFunc {
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

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, usecase.GetMessagesInput{
			ConversationID: conversationID,
			CallerID:       who.UserID,
		})
		if err != nil {
			c.JSON(restStatus(err), gin.H{"error": err.Error()})
			return
		}

		out := make([]notify.MessagePayload, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, notify.ToPayload(m))
		}
		c.JSON(http.StatusOK, gin.H{
			"messages": out,
			"count":    len(out),
		})
	}
}

// restStatus maps domain and use case errors onto HTTP status codes shared by
// the REST controllers.
func restStatus(err error) int {
	switch {
	case errors.Is(err, usecase.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrNotParticipant):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
