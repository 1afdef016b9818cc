package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dormlink/internal/infrastructure/identity"
	"dormlink/internal/infrastructure/realtime"
	chat "dormlink/internal/pkg/chat/application/domain"
	"dormlink/internal/pkg/chat/application/notify"
	"dormlink/internal/pkg/chat/application/usecase"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatSocketController handles the websocket endpoint for realtime chat traffic.
type ChatSocketController struct {
	resolver        *identity.Resolver
	registry        *realtime.Registry
	notifier        *notify.Notifier
	sendMessageUC   *usecase.SendMessageUseCase
	joinUC          *usecase.JoinConversationUseCase
	inflightTimeout time.Duration
}

func NewChatSocketController(repo repository.ChatRepository, resolver *identity.Resolver, registry *realtime.Registry, notifier *notify.Notifier) *ChatSocketController {
	return &ChatSocketController{
		resolver:        resolver,
		registry:        registry,
		notifier:        notifier,
		sendMessageUC:   usecase.NewSendMessageUseCase(repo),
		joinUC:          usecase.NewJoinConversationUseCase(repo),
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when the frontends settle.
		return true
	},
}

type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"message_text,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type ackFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

const defaultReadTimeout = 60 * time.Second

// Handle upgrades HTTP connections to websocket and processes frames until
// the client disconnects. The bearer token travels in the "token" query
// parameter because browser websocket clients cannot set headers.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
			return
		}
		who, err := ctl.resolver.Resolve(token)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; nothing more to do.
			return
		}

		conn := realtime.NewConnection(who.UserID, string(who.Role), ws)
		ctl.registry.Admit(conn)
		// Every session listens on its own user group so chat-list refresh
		// signals reach all of the user's open tabs.
		ctl.registry.Join(realtime.UserGroup(who.UserID), conn)
		defer func() {
			ctl.registry.Drop(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		// Explicit handshake: clients wait for this before (re)joining their
		// conversation groups, since group membership dies with the socket.
		if payload, err := json.Marshal(ackFrame{Type: "connected"}); err == nil {
			_ = conn.Send(payload)
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				ctl.replyError(conn, "read_error", err.Error())
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				ctl.replyError(conn, "validation_error", "invalid payload")
				continue
			}

			switch frame.Type {
			case "join_user_room":
				// Idempotent; sessions are already in their user group from
				// the handshake, but older clients still send this.
				ctl.registry.Join(realtime.UserGroup(who.UserID), conn)
				if payload, err := json.Marshal(ackFrame{Type: "joined_user_room"}); err == nil {
					_ = conn.Send(payload)
				}
			case "join_conversation":
				ctl.handleJoin(c, conn, who, frame)
			case "leave_conversation":
				ctl.handleLeave(conn, frame)
			case "send_message":
				ctl.handleSend(c, conn, who, frame)
			default:
				ctl.replyError(conn, "unsupported_type", "unknown frame type")
			}
		}
	}
}

func (ctl *ChatSocketController) handleJoin(c *gin.Context, conn *realtime.Connection, who identity.Identity, frame inboundFrame) {
	if frame.ConversationID == "" {
		ctl.replyError(conn, "validation_error", "conversation_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	err := ctl.joinUC.Execute(ctx, usecase.JoinConversationInput{
		ConversationID: frame.ConversationID,
		UserID:         who.UserID,
	})
	if err != nil {
		ctl.replyUseCaseError(conn, err)
		return
	}

	ctl.registry.Join(realtime.ConversationGroup(frame.ConversationID), conn)

	if payload, err := json.Marshal(ackFrame{Type: "joined", ConversationID: frame.ConversationID}); err == nil {
		_ = conn.Send(payload)
	}
}

func (ctl *ChatSocketController) handleLeave(conn *realtime.Connection, frame inboundFrame) {
	if frame.ConversationID == "" {
		ctl.replyError(conn, "validation_error", "conversation_id is required")
		return
	}
	ctl.registry.Leave(realtime.ConversationGroup(frame.ConversationID), conn)

	if payload, err := json.Marshal(ackFrame{Type: "left", ConversationID: frame.ConversationID}); err == nil {
		_ = conn.Send(payload)
	}
}

func (ctl *ChatSocketController) handleSend(c *gin.Context, conn *realtime.Connection, who identity.Identity, frame inboundFrame) {
	if frame.ConversationID == "" {
		ctl.replyError(conn, "validation_error", "conversation_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	out, err := ctl.sendMessageUC.Execute(ctx, usecase.SendMessageInput{
		ConversationID: frame.ConversationID,
		Sender:         who.Sender(),
		Text:           frame.Text,
	})
	if err != nil {
		ctl.replyUseCaseError(conn, err)
		return
	}

	// Fan-out runs after the row is durable; the sender receives the stored
	// message through the conversation group like everyone else.
	ctl.notifier.MessageAppended(ctx, out.Message, out.Conversation)
}

func (ctl *ChatSocketController) replyUseCaseError(conn *realtime.Connection, err error) {
	switch {
	case errors.Is(err, usecase.ErrPersistence):
		ctl.replyError(conn, "internal_error", "unexpected persistence error")
	case errors.Is(err, chat.ErrConversationNotFound):
		ctl.replyError(conn, "not_found", "conversation does not exist")
	case errors.Is(err, chat.ErrNotParticipant):
		ctl.replyError(conn, "forbidden", "user is not a participant in this conversation")
	default:
		ctl.replyError(conn, "validation_error", err.Error())
	}
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, code string, message string) {
	frame := errorFrame{
		Type:  "error",
		Code:  code,
		Error: message,
	}
	if payload, err := json.Marshal(frame); err == nil {
		_ = conn.Send(payload)
	}
}
