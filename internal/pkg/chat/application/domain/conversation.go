package chat

import "time"

// Conversation is a 1:1 thread between a student and a landlord, optionally
// anchored to a property listing. At most one conversation exists per pair;
// the persistence layer enforces that with a unique index on the pair.
type Conversation struct {
	ID         string    `db:"conversation_id"`
	StudentID  string    `db:"student_id"`
	LandlordID string    `db:"landlord_id"`
	PropertyID *string   `db:"property_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// HasParticipant tells whether the sender is one of the two parties.
func (c Conversation) HasParticipant(s Sender) bool {
	switch s.Role {
	case RoleStudent:
		return s.ID != "" && s.ID == c.StudentID
	case RoleLandlord:
		return s.ID != "" && s.ID == c.LandlordID
	}
	return false
}

// HasParticipantID tells whether the given user id belongs to either side.
func (c Conversation) HasParticipantID(userID string) bool {
	return userID != "" && (userID == c.StudentID || userID == c.LandlordID)
}

// Participants returns both parties as senders, student first.
func (c Conversation) Participants() []Sender {
	return []Sender{
		{Role: RoleStudent, ID: c.StudentID},
		{Role: RoleLandlord, ID: c.LandlordID},
	}
}

// ConversationSummary is a conversation enriched for the chat-list screen:
// who the counterpart is, which property the thread is about, and the text
// of the most recent message.
type ConversationSummary struct {
	Conversation
	CounterpartName   string  `json:"counterpart_name"`
	CounterpartAvatar *string `json:"counterpart_avatar"`
	PropertyAddress   *string `json:"property_address"`
	LastMessage       *string `json:"last_message"`
}
