package chat

// Role identifies which side of the marketplace a user belongs to.
type Role string

const (
	RoleStudent  Role = "student"
	RoleLandlord Role = "landlord"
)

// Valid reports whether the role is one of the two known kinds.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleLandlord
}

// Sender is the tagged identity of a message author: a role plus the id of
// the user within that role's table.
type Sender struct {
	Role Role   `json:"sender_type"`
	ID   string `json:"sender_id"`
}
