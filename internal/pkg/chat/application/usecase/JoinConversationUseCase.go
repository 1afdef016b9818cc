package usecase

import (
	"context"
	"fmt"

	chat "dormlink/internal/pkg/chat/application/domain"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"
)

// JoinConversationInput validates a request to attach a live connection to a
// conversation's broadcast group.
type JoinConversationInput struct {
	ConversationID string
	UserID         string
}

// JoinConversationUseCase ensures the user belongs to the conversation before
// the registry admits them to its group.
type JoinConversationUseCase struct {
	Repo repository.ChatRepository
}

func NewJoinConversationUseCase(repo repository.ChatRepository) *JoinConversationUseCase {
	return &JoinConversationUseCase{Repo: repo}
}

func (uc *JoinConversationUseCase) Execute(ctx context.Context, in JoinConversationInput) error {
	if in.ConversationID == "" || in.UserID == "" {
		return fmt.Errorf("conversation_id and user_id are required")
	}

	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if conv == nil {
		return chat.ErrConversationNotFound
	}
	if !conv.HasParticipantID(in.UserID) {
		return chat.ErrNotParticipant
	}
	return nil
}
