package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	qport "dormlink/internal/infrastructure/queue/port"
	chat "dormlink/internal/pkg/chat/application/domain"
	"dormlink/internal/pkg/chat/application/notify"
	"dormlink/internal/pkg/chat/application/usecase"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"
)

// AppendMessageTaskType is the queue task name for appending a message to a
// conversation from the REST path.
const AppendMessageTaskType = "chat:append_message"

// QueueChat is the queue the append task is routed to, separate from
// "default" so chat delivery keeps its own concurrency budget.
const QueueChat = "chat"

// AppendMessageTaskPayload is the JSON payload transported via the queue.
// Kept decoupled from domain types to avoid tight coupling with JSON tags.
type AppendMessageTaskPayload struct {
	ConversationID string `json:"conversationId"`
	SenderRole     string `json:"senderRole"`
	SenderID       string `json:"senderId"`
	Text           string `json:"text"`
}

// EnqueueAppendMessage puts an append on the chat queue. The caller has
// already authenticated the sender; validation happens in the handler.
func EnqueueAppendMessage(ctx context.Context, client qport.Client, p AppendMessageTaskPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(ctx, qport.Task{Type: AppendMessageTaskType, Payload: raw}, qport.EnqueueOption{Queue: QueueChat})
	return err
}

// RegisterAppendMessageTask binds the append handler to the provided server.
// Domain rejections (bad text, unknown conversation, non-participant) are
// logged and dropped so the queue never retries them; persistence failures
// are returned to the adapter's retry policy.
func RegisterAppendMessageTask(srv qport.Server, repo repository.ChatRepository, notifier *notify.Notifier, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	uc := usecase.NewSendMessageUseCase(repo)

	srv.Register(AppendMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p AppendMessageTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			logger.Error("append task: malformed payload", "error", err)
			return nil
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		out, err := uc.Execute(ctx, usecase.SendMessageInput{
			ConversationID: p.ConversationID,
			Sender:         chat.Sender{Role: chat.Role(p.SenderRole), ID: p.SenderID},
			Text:           p.Text,
		})
		if err != nil {
			if errors.Is(err, usecase.ErrPersistence) {
				return err
			}
			logger.Warn("append task: rejected",
				"conversation_id", p.ConversationID,
				"sender_id", p.SenderID,
				"error", err)
			return nil
		}

		notifier.MessageAppended(ctx, out.Message, out.Conversation)
		return nil
	})
}
