package usecase

import (
	"context"
	"fmt"
	"log/slog"

	chat "dormlink/internal/pkg/chat/application/domain"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries a compose-message command.
type SendMessageInput struct {
	ConversationID string
	Sender         chat.Sender
	Text           string
}

// SendMessageOutput is the stored message plus the conversation it landed in,
// which the fan-out needs for participant targeting.
type SendMessageOutput struct {
	Message      chat.Message
	Conversation chat.Conversation
}

// SendMessageUseCase is the single mutating entry point for chat content:
// validate, check membership, persist, advance the conversation's activity
// timestamp. Broadcasting happens strictly after a successful return.
type SendMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewSendMessageUseCase(repo repository.ChatRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo}
}

func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	draft, err := chat.NewDraft(in.ConversationID, in.Sender, in.Text)
	if err != nil {
		return nil, err
	}

	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if conv == nil {
		return nil, chat.ErrConversationNotFound
	}
	if !conv.HasParticipant(in.Sender) {
		return nil, chat.ErrNotParticipant
	}

	msg, err := uc.Repo.InsertMessage(ctx, draft.ConversationID, draft.Sender, draft.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// The message is durable at this point; a failed touch only leaves the
	// list ordering briefly stale, so it must not fail the send.
	if err := uc.Repo.TouchConversation(ctx, conv.ID); err != nil {
		slog.Warn("failed to touch conversation after append",
			"conversation_id", conv.ID, "err", err)
	}

	return &SendMessageOutput{Message: msg, Conversation: *conv}, nil
}
