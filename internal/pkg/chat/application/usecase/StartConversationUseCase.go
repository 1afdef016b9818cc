package usecase

import (
	"context"
	"fmt"

	chat "dormlink/internal/pkg/chat/application/domain"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"
)

// StartConversationInput carries the pair to look up or create. PropertyID is
// the optional listing the first contact happened on.
type StartConversationInput struct {
	StudentID  string
	LandlordID string
	PropertyID *string
}

// StartConversationUseCase finds or creates the one conversation for a
// student/landlord pair. Repeated calls for the same pair always return the
// same record; the property association of an existing conversation is never
// touched.
type StartConversationUseCase struct {
	Repo repository.ChatRepository
}

func NewStartConversationUseCase(repo repository.ChatRepository) *StartConversationUseCase {
	return &StartConversationUseCase{Repo: repo}
}

func (uc *StartConversationUseCase) Execute(ctx context.Context, in StartConversationInput) (*chat.Conversation, error) {
	if in.StudentID == "" || in.LandlordID == "" {
		return nil, fmt.Errorf("student_id and landlord_id are required")
	}

	existing, err := uc.Repo.FindConversationByPair(ctx, in.StudentID, in.LandlordID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if existing != nil {
		return existing, nil
	}

	// The repository resolves a concurrent create for the same pair to the
	// winner's row, so this is safe to race.
	conv, err := uc.Repo.CreateConversation(ctx, in.StudentID, in.LandlordID, in.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &conv, nil
}
