package adapter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "dormlink/internal/pkg/chat/application/domain"
)

// PgChatRepository persists conversations and messages in Postgres. It relies
// on a unique index over (student_id, landlord_id) on chat_conversations to
// keep find-or-create race-free.
type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

const conversationColumns = `conversation_id::text, student_id::text, landlord_id::text, property_id::text, created_at, updated_at`

func (r *PgChatRepository) FindConversationByPair(ctx context.Context, studentID, landlordID string) (*chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM chat_conversations
		WHERE student_id = $1 AND landlord_id = $2
	`, studentID, landlordID)
	return scanOptionalConversation(row)
}

func (r *PgChatRepository) CreateConversation(ctx context.Context, studentID, landlordID string, propertyID *string) (chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return chat.Conversation{}, errors.New("PgChatRepository: nil pool")
	}

	// ON CONFLICT DO NOTHING plus a re-select keeps concurrent creates for
	// the same pair from producing two rows, and a loser of the race never
	// overwrites the winner's property_id.
	var c chat.Conversation
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_conversations (student_id, landlord_id, property_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, landlord_id) DO NOTHING
		RETURNING `+conversationColumns+`
	`, studentID, landlordID, propertyID).Scan(
		&c.ID, &c.StudentID, &c.LandlordID, &c.PropertyID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, err
	}

	existing, err := r.FindConversationByPair(ctx, studentID, landlordID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if existing == nil {
		return chat.Conversation{}, errors.New("PgChatRepository: conversation vanished after conflicting insert")
	}
	return *existing, nil
}

func (r *PgChatRepository) GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM chat_conversations
		WHERE conversation_id = $1
	`, conversationID)
	return scanOptionalConversation(row)
}

func (r *PgChatRepository) InsertMessage(ctx context.Context, conversationID string, sender chat.Sender, text string) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errors.New("PgChatRepository: nil pool")
	}
	m := chat.Message{ConversationID: conversationID, Sender: sender, Text: text}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (conversation_id, sender_type, sender_id, message_text)
		VALUES ($1, $2, $3, $4)
		RETURNING message_id::text, created_at
	`, conversationID, string(sender.Role), sender.ID, text).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

func (r *PgChatRepository) TouchConversation(ctx context.Context, conversationID string) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat_conversations SET updated_at = NOW() WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgChatRepository) ListConversationsForParticipant(ctx context.Context, userID string, role chat.Role) ([]chat.ConversationSummary, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}

	// The counterpart join depends on which side the caller is: students see
	// landlord names, landlords see student names.
	var query string
	switch role {
	case chat.RoleStudent:
		query = `
			SELECT ` + summaryConversationColumns + `,
			       l.first_name || ' ' || l.last_name AS counterpart_name,
			       l.avatar_url AS counterpart_avatar,
			       p.address,
			       (SELECT message_text FROM chat_messages
			        WHERE conversation_id = c.conversation_id
			        ORDER BY created_at DESC LIMIT 1) AS last_message
			FROM chat_conversations c
			JOIN landlords l ON c.landlord_id = l.landlord_id
			LEFT JOIN properties p ON c.property_id = p.property_id
			WHERE c.student_id = $1
			ORDER BY c.updated_at DESC
		`
	case chat.RoleLandlord:
		query = `
			SELECT ` + summaryConversationColumns + `,
			       s.first_name || ' ' || s.last_name AS counterpart_name,
			       s.avatar_url AS counterpart_avatar,
			       p.address,
			       (SELECT message_text FROM chat_messages
			        WHERE conversation_id = c.conversation_id
			        ORDER BY created_at DESC LIMIT 1) AS last_message
			FROM chat_conversations c
			JOIN students s ON c.student_id = s.student_id
			LEFT JOIN properties p ON c.property_id = p.property_id
			WHERE c.landlord_id = $1
			ORDER BY c.updated_at DESC
		`
	default:
		return nil, chat.ErrInvalidRole
	}

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []chat.ConversationSummary
	for rows.Next() {
		var s chat.ConversationSummary
		if err := rows.Scan(
			&s.ID, &s.StudentID, &s.LandlordID, &s.PropertyID, &s.CreatedAt, &s.UpdatedAt,
			&s.CounterpartName, &s.CounterpartAvatar, &s.PropertyAddress, &s.LastMessage,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *PgChatRepository) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT message_id::text, conversation_id::text, sender_type, sender_id::text, message_text, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, message_id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			m    chat.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Sender.ID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sender.Role = chat.Role(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

const summaryConversationColumns = `c.conversation_id::text, c.student_id::text, c.landlord_id::text, c.property_id::text, c.created_at, c.updated_at`

func scanOptionalConversation(row pgx.Row) (*chat.Conversation, error) {
	var c chat.Conversation
	err := row.Scan(&c.ID, &c.StudentID, &c.LandlordID, &c.PropertyID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
