package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	cacheport "dormlink/internal/infrastructure/cache/port"
	"dormlink/internal/infrastructure/realtime"
	relayport "dormlink/internal/infrastructure/relay/port"
	chat "dormlink/internal/pkg/chat/application/domain"
	"dormlink/internal/pkg/chat/application/usecase"
)

// Broadcaster is the local fan-out sink. *realtime.Registry satisfies it.
type Broadcaster interface {
	Broadcast(group string, payload []byte) int
}

// MessageFrame is the server->client event for a freshly stored message.
type MessageFrame struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Message        MessagePayload `json:"message"`
}

// MessagePayload is the wire shape of a stored message.
type MessagePayload struct {
	ID             string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderType     string    `json:"sender_type"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"message_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// RefreshFrame is the server->client signal that a chat list went stale. It
// carries no data; clients refetch their summaries.
type RefreshFrame struct {
	Type string `json:"type"`
}

// ToPayload converts a stored message to its wire shape.
func ToPayload(msg chat.Message) MessagePayload {
	return MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderType:     string(msg.Sender.Role),
		SenderID:       msg.Sender.ID,
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
}

// Notifier is the fan-out layer invoked exactly once per successfully
// persisted message. It never persists anything itself; it only distributes
// the already-stored record and invalidates derived cache entries.
type Notifier struct {
	broadcaster Broadcaster
	cache       cacheport.Cache // optional
	relay       relayport.Relay // optional
	logger      *slog.Logger
}

func NewNotifier(broadcaster Broadcaster, cache cacheport.Cache, relay relayport.Relay, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{broadcaster: broadcaster, cache: cache, relay: relay, logger: logger}
}

// MessageAppended pushes the message to everyone viewing the conversation,
// then signals both participants' chat-list screens to refetch. The
// conversation push always goes out first so a client can never see the
// refresh signal for a message it has no way to fetch yet; their cache keys
// are dropped before the signal so the refetch cannot serve stale summaries.
func (n *Notifier) MessageAppended(ctx context.Context, msg chat.Message, conv chat.Conversation) {
	framed, err := json.Marshal(MessageFrame{
		Type:           "new_message",
		ConversationID: conv.ID,
		Message:        ToPayload(msg),
	})
	if err != nil {
		n.logger.Error("failed to encode new_message frame", "message_id", msg.ID, "err", err)
		return
	}

	n.broadcast(ctx, realtime.ConversationGroup(conv.ID), framed)

	n.invalidateLists(ctx, conv)

	refresh, err := json.Marshal(RefreshFrame{Type: "update_chat_list"})
	if err != nil {
		n.logger.Error("failed to encode update_chat_list frame", "err", err)
		return
	}
	for _, p := range conv.Participants() {
		n.broadcast(ctx, realtime.UserGroup(p.ID), refresh)
	}
}

func (n *Notifier) broadcast(ctx context.Context, group string, payload []byte) {
	n.broadcaster.Broadcast(group, payload)
	if n.relay != nil {
		if err := n.relay.Publish(ctx, group, payload); err != nil {
			n.logger.Warn("relay publish failed", "group", group, "err", err)
		}
	}
}

func (n *Notifier) invalidateLists(ctx context.Context, conv chat.Conversation) {
	if n.cache == nil {
		return
	}
	keys := []string{
		usecase.ListCacheKey(chat.RoleStudent, conv.StudentID),
		usecase.ListCacheKey(chat.RoleLandlord, conv.LandlordID),
	}
	if _, err := n.cache.Del(ctx, keys...); err != nil {
		n.logger.Warn("chat list cache invalidation failed", "conversation_id", conv.ID, "err", err)
	}
}
