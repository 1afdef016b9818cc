package chat

import (
	"errors"
	"strings"
	"time"
)

// MaxMessageLength bounds the persisted message text in characters.
const MaxMessageLength = 1000

// Domain-level errors for chat behaviors
var (
	ErrEmptyMessage         = errors.New("chat: message text is empty")
	ErrMessageTooLong       = errors.New("chat: message text exceeds length bound")
	ErrNotParticipant       = errors.New("chat: user is not a participant in the conversation")
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrInvalidRole          = errors.New("chat: unknown participant role")
)

// Message is an immutable log entry in a conversation. ID and CreatedAt are
// assigned by the persistence layer on insert.
type Message struct {
	ID             string    `db:"message_id"`
	ConversationID string    `db:"conversation_id"`
	Sender         Sender    `db:"-"`
	Text           string    `db:"message_text"`
	CreatedAt      time.Time `db:"created_at"`
}

// ValidateText normalizes message text for persistence: leading/trailing
// whitespace is stripped, and the result must be non-empty and within
// MaxMessageLength runes.
func ValidateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if len([]rune(trimmed)) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

// NewDraft validates the parts of a message the caller controls and returns
// a draft ready to hand to the persistence layer.
func NewDraft(conversationID string, sender Sender, text string) (Message, error) {
	if conversationID == "" {
		return Message{}, ErrConversationNotFound
	}
	if !sender.Role.Valid() {
		return Message{}, ErrInvalidRole
	}
	normalized, err := ValidateText(text)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ConversationID: conversationID,
		Sender:         sender,
		Text:           normalized,
	}, nil
}
