package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dormlink/internal/infrastructure/identity"
	chat "dormlink/internal/pkg/chat/application/domain"
	"dormlink/internal/pkg/chat/application/usecase"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
)

// CreateConversationController handles the conversation creation endpoint.
// One controller per endpoint.

type CreateConversationController struct {
	UC *usecase.StartConversationUseCase
}

func NewCreateConversationController(repo repository.ChatRepository) *CreateConversationController {
	return &CreateConversationController{UC: usecase.NewStartConversationUseCase(repo)}
}

type createConversationRequest struct {
	LandlordID string  `json:"landlord_id" binding:"required"`
	PropertyID *string `json:"property_id"`
}

func (h *CreateConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := identity.FromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		// Conversations always start from the student side; a landlord replies
		// within an existing thread.
		if who.Role != chat.RoleStudent {
			c.JSON(http.StatusForbidden, gin.H{"error": "only students can open conversations"})
			return
		}

		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		conv, err := h.UC.Execute(ctx, usecase.StartConversationInput{
			StudentID:  who.UserID,
			LandlordID: req.LandlordID,
			PropertyID: req.PropertyID,
		})
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"conversation_id": conv.ID,
			"student_id":      conv.StudentID,
			"landlord_id":     conv.LandlordID,
			"property_id":     conv.PropertyID,
			"created_at":      conv.CreatedAt,
			"updated_at":      conv.UpdatedAt,
		})
	}
}
