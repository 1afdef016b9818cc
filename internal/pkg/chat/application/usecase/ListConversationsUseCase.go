package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cacheport "dormlink/internal/infrastructure/cache/port"
	chat "dormlink/internal/pkg/chat/application/domain"
	repository "dormlink/internal/pkg/chat/persistence/repository/port"
)

// listCacheTTL bounds staleness for callers that never receive the refresh
// signal (e.g. clients that were offline when it went out).
const listCacheTTL = 60 * time.Second

// ListCacheKey names the cached chat-list payload of one user. The notifier
// deletes both participants' keys on every append.
func ListCacheKey(role chat.Role, userID string) string {
	return fmt.Sprintf("chat:list:%s:%s", role, userID)
}

// ListConversationsInput identifies whose chat list to fetch.
type ListConversationsInput struct {
	UserID string
	Role   chat.Role
}

// ListConversationsUseCase returns the caller's conversations enriched for
// the chat-list screen, serving from cache when warm. Cache trouble degrades
// to a direct repository read.
type ListConversationsUseCase struct {
	Repo  repository.ChatRepository
	Cache cacheport.Cache // optional; nil disables caching
}

func NewListConversationsUseCase(repo repository.ChatRepository, cache cacheport.Cache) *ListConversationsUseCase {
	return &ListConversationsUseCase{Repo: repo, Cache: cache}
}

func (uc *ListConversationsUseCase) Execute(ctx context.Context, in ListConversationsInput) ([]chat.ConversationSummary, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if !in.Role.Valid() {
		return nil, chat.ErrInvalidRole
	}

	key := ListCacheKey(in.Role, in.UserID)
	if uc.Cache != nil {
		if raw, err := uc.Cache.Get(ctx, key); err == nil {
			var cached []chat.ConversationSummary
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return cached, nil
			}
			// poisoned entry; fall through to the repository
		} else if !errors.Is(err, cacheport.ErrMiss) {
			slog.Debug("chat list cache read failed", "key", key, "err", err)
		}
	}

	summaries, err := uc.Repo.ListConversationsForParticipant(ctx, in.UserID, in.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if uc.Cache != nil {
		if raw, err := json.Marshal(summaries); err == nil {
			if err := uc.Cache.Set(ctx, key, string(raw), listCacheTTL); err != nil {
				slog.Debug("chat list cache write failed", "key", key, "err", err)
			}
		}
	}
	return summaries, nil
}
