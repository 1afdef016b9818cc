package controller

import (
	"context"
	"net/http"
	"time"

	cacheport "dormlink/internal/infrastructure/cache/port"
	"dormlink/internal/infrastructure/identity"
	"dormlink/internal/pkg/chat/application/usecase"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
)

// ListConversationsController serves the caller's chat-list screen (one
// controller per endpoint). The counterpart shown in each summary depends on
// the caller's role from the token.
type ListConversationsController struct {
	UC *usecase.ListConversationsUseCase
}

func NewListConversationsController(repo repository.ChatRepository, cache cacheport.Cache) *ListConversationsController {
	return &ListConversationsController{UC: usecase.NewListConversationsUseCase(repo, cache)}
}

func (h *ListConversationsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity.FromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		summaries, err := h.UC.Execute(ctx, usecase.ListConversationsInput{
			UserID: who.UserID,
			Role:   who.Role,
		})
		if err != nil {
			c.JSON(restStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversations": summaries,
			"count":         len(summaries),
		})
	}
}
