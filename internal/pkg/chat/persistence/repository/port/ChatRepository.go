package repository

import (
	"context"

	chat "dormlink/internal/pkg/chat/application/domain"
)

// ChatRepository is the persistence gateway for the conversation core. The
// store is the single source of truth for durable state; callers trust it for
// insert ordering within a conversation.
type ChatRepository interface {
	// FindConversationByPair returns the conversation for the pair, or nil
	// when none exists.
	FindConversationByPair(ctx context.Context, studentID, landlordID string) (*chat.Conversation, error)

	// CreateConversation inserts a conversation for the pair. It must be safe
	// under concurrent calls for the same pair: a race returns the existing
	// record instead of creating a duplicate, and never overwrites its
	// property association.
	CreateConversation(ctx context.Context, studentID, landlordID string, propertyID *string) (chat.Conversation, error)

	// GetConversation returns the conversation by id, or nil when absent.
	GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error)

	// InsertMessage appends a message and returns the stored record with its
	// server-assigned id and timestamp.
	InsertMessage(ctx context.Context, conversationID string, sender chat.Sender, text string) (chat.Message, error)

	// TouchConversation advances the conversation's updated_at to the store's
	// current time.
	TouchConversation(ctx context.Context, conversationID string) error

	// ListConversationsForParticipant returns the user's conversations
	// enriched for the chat-list screen, most recently active first.
	ListConversationsForParticipant(ctx context.Context, userID string, role chat.Role) ([]chat.ConversationSummary, error)

	// ListMessages returns the full message history of a conversation in
	// ascending creation order.
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
}
