package usecase

import (
	"context"
	"fmt"

	chat "dormlink/internal/pkg/chat/application/domain"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"
)

// GetMessagesInput carries the conversation to read and who is asking.
type GetMessagesInput struct {
	ConversationID string
	CallerID       string
}

// GetMessagesUseCase returns the full history of a conversation, oldest
// first, after checking that the caller is a participant.
type GetMessagesUseCase struct {
	Repo repository.ChatRepository
}

func NewGetMessagesUseCase(repo repository.ChatRepository) *GetMessagesUseCase {
	return &GetMessagesUseCase{Repo: repo}
}

func (uc *GetMessagesUseCase) Execute(ctx context.Context, in GetMessagesInput) ([]chat.Message, error) {
	if in.ConversationID == "" || in.CallerID == "" {
		return nil, fmt.Errorf("conversation_id and caller_id are required")
	}

	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if conv == nil {
		return nil, chat.ErrConversationNotFound
	}
	if !conv.HasParticipantID(in.CallerID) {
		return nil, chat.ErrNotParticipant
	}

	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}
