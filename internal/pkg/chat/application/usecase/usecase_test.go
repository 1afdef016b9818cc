package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheport "dormlink/internal/infrastructure/cache/port"
	chat "dormlink/internal/pkg/chat/application/domain"
)

// fakeChatRepository is an in-memory stand-in for the persistence gateway,
// enforcing the same pair uniqueness the Postgres index does.
type fakeChatRepository struct {
	mu            sync.Mutex
	conversations map[string]*chat.Conversation // by id
	byPair        map[string]string             // "studentID|landlordID" -> id
	messages      map[string][]chat.Message     // by conversation id
	nextID        int
	now           time.Time

	failInsert bool
	failTouch  bool
	listCalls  int
}

func newFakeRepo() *fakeChatRepository {
	return &fakeChatRepository{
		conversations: make(map[string]*chat.Conversation),
		byPair:        make(map[string]string),
		messages:      make(map[string][]chat.Message),
		now:           time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func pairKey(studentID, landlordID string) string { return studentID + "|" + landlordID }

func (f *fakeChatRepository) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeChatRepository) FindConversationByPair(ctx context.Context, studentID, landlordID string) (*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPair[pairKey(studentID, landlordID)]
	if !ok {
		return nil, nil
	}
	c := *f.conversations[id]
	return &c, nil
}

func (f *fakeChatRepository) CreateConversation(ctx context.Context, studentID, landlordID string, propertyID *string) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byPair[pairKey(studentID, landlordID)]; ok {
		return *f.conversations[id], nil
	}
	f.nextID++
	now := f.tick()
	c := &chat.Conversation{
		ID:         fmt.Sprintf("c%d", f.nextID),
		StudentID:  studentID,
		LandlordID: landlordID,
		PropertyID: propertyID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.conversations[c.ID] = c
	f.byPair[pairKey(studentID, landlordID)] = c.ID
	return *c, nil
}

func (f *fakeChatRepository) GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeChatRepository) InsertMessage(ctx context.Context, conversationID string, sender chat.Sender, text string) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return chat.Message{}, errors.New("insert failed")
	}
	f.nextID++
	m := chat.Message{
		ID:             fmt.Sprintf("m%d", f.nextID),
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      f.tick(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], m)
	return m, nil
}

func (f *fakeChatRepository) TouchConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTouch {
		return errors.New("touch failed")
	}
	c, ok := f.conversations[conversationID]
	if !ok {
		return errors.New("no rows")
	}
	c.UpdatedAt = f.tick()
	return nil
}

func (f *fakeChatRepository) ListConversationsForParticipant(ctx context.Context, userID string, role chat.Role) ([]chat.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []chat.ConversationSummary
	for _, c := range f.conversations {
		if (role == chat.RoleStudent && c.StudentID == userID) || (role == chat.RoleLandlord && c.LandlordID == userID) {
			out = append(out, chat.ConversationSummary{Conversation: *c, CounterpartName: "Counter Part"})
		}
	}
	return out, nil
}

func (f *fakeChatRepository) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.messages[conversationID]...), nil
}

// memoryCache is a map-backed port.Cache for cache-aside tests.
type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryCache() *memoryCache { return &memoryCache{data: make(map[string]string)} }

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", cacheport.ErrMiss
	}
	return v, nil
}
func (m *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
func (m *memoryCache) Del(ctx context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}
func (m *memoryCache) Ping(ctx context.Context) error { return nil }

func (m *memoryCache) Close() error { return nil }

func propertyID(v string) *string { return &v }

func TestStartConversationFindOrCreate(t *testing.T) {
	repo := newFakeRepo()
	uc := NewStartConversationUseCase(repo)
	ctx := context.Background()

	first, err := uc.Execute(ctx, StartConversationInput{StudentID: "s1", LandlordID: "l1", PropertyID: propertyID("42")})
	require.NoError(t, err)
	require.NotNil(t, first.PropertyID)
	assert.Equal(t, "42", *first.PropertyID)

	// second call with a different property returns the same record unchanged
	second, err := uc.Execute(ctx, StartConversationInput{StudentID: "s1", LandlordID: "l1", PropertyID: propertyID("99")})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.PropertyID)
	assert.Equal(t, "42", *second.PropertyID, "property of an existing conversation is never overwritten")

	_, err = uc.Execute(ctx, StartConversationInput{StudentID: "", LandlordID: "l1"})
	assert.Error(t, err)
}

func TestStartConversationConcurrentSamePair(t *testing.T) {
	repo := newFakeRepo()
	uc := NewStartConversationUseCase(repo)

	const callers = 16
	ids := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := uc.Execute(context.Background(), StartConversationInput{StudentID: "s1", LandlordID: "l1"})
			if assert.NoError(t, err) {
				ids <- conv.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1, "a race must not produce two conversations for one pair")
	assert.Len(t, repo.conversations, 1)
}

func TestSendMessageHappyPath(t *testing.T) {
	repo := newFakeRepo()
	conv, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)

	uc := NewSendMessageUseCase(repo)
	out, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: conv.ID,
		Sender:         chat.Sender{Role: chat.RoleStudent, ID: "s1"},
		Text:           "  Hello  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Message.Text)
	assert.Equal(t, chat.RoleStudent, out.Message.Sender.Role)
	assert.NotEmpty(t, out.Message.ID)
	assert.False(t, out.Message.CreatedAt.IsZero())
	assert.Equal(t, conv.ID, out.Conversation.ID)

	msgs, err := NewGetMessagesUseCase(repo).Execute(context.Background(), GetMessagesInput{ConversationID: conv.ID, CallerID: "s1"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, out.Message.ID, msgs[0].ID)

	updated, err := repo.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(conv.UpdatedAt), "append advances updated_at")
}

func TestSendMessageOrderingWithinConversation(t *testing.T) {
	repo := newFakeRepo()
	conv, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)

	uc := NewSendMessageUseCase(repo)
	for i := 0; i < 5; i++ {
		_, err := uc.Execute(context.Background(), SendMessageInput{
			ConversationID: conv.ID,
			Sender:         chat.Sender{Role: chat.RoleLandlord, ID: "l1"},
			Text:           fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
	}

	msgs, err := NewGetMessagesUseCase(repo).Execute(context.Background(), GetMessagesInput{ConversationID: conv.ID, CallerID: "l1"})
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "history is ascending by creation")
	}
	assert.Equal(t, "msg 4", msgs[len(msgs)-1].Text, "newest message is last")
}

func TestSendMessageValidation(t *testing.T) {
	repo := newFakeRepo()
	conv, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)

	uc := NewSendMessageUseCase(repo)
	sender := chat.Sender{Role: chat.RoleStudent, ID: "s1"}

	tests := []struct {
		name    string
		in      SendMessageInput
		wantErr error
	}{
		{"empty text", SendMessageInput{ConversationID: conv.ID, Sender: sender, Text: ""}, chat.ErrEmptyMessage},
		{"whitespace text", SendMessageInput{ConversationID: conv.ID, Sender: sender, Text: "   \n\t"}, chat.ErrEmptyMessage},
		{"oversized text", SendMessageInput{ConversationID: conv.ID, Sender: sender, Text: strings.Repeat("x", chat.MaxMessageLength+1)}, chat.ErrMessageTooLong},
		{"unknown conversation", SendMessageInput{ConversationID: "nope", Sender: sender, Text: "hi"}, chat.ErrConversationNotFound},
		{"non-participant sender", SendMessageInput{ConversationID: conv.ID, Sender: chat.Sender{Role: chat.RoleLandlord, ID: "s2"}, Text: "hi"}, chat.ErrNotParticipant},
		{"participant id on wrong side", SendMessageInput{ConversationID: conv.ID, Sender: chat.Sender{Role: chat.RoleLandlord, ID: "s1"}, Text: "hi"}, chat.ErrNotParticipant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			msgs, _ := repo.ListMessages(context.Background(), conv.ID)
			assert.Empty(t, msgs, "a rejected send must not persist a row")
		})
	}
}

func TestSendMessagePersistenceFailure(t *testing.T) {
	repo := newFakeRepo()
	conv, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)
	repo.failInsert = true

	_, err = NewSendMessageUseCase(repo).Execute(context.Background(), SendMessageInput{
		ConversationID: conv.ID,
		Sender:         chat.Sender{Role: chat.RoleStudent, ID: "s1"},
		Text:           "hi",
	})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSendMessageSurvivesTouchFailure(t *testing.T) {
	repo := newFakeRepo()
	conv, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)
	repo.failTouch = true

	out, err := NewSendMessageUseCase(repo).Execute(context.Background(), SendMessageInput{
		ConversationID: conv.ID,
		Sender:         chat.Sender{Role: chat.RoleStudent, ID: "s1"},
		Text:           "hi",
	})
	require.NoError(t, err, "a stale updated_at must not fail a durable send")
	assert.NotEmpty(t, out.Message.ID)
}

func TestGetMessagesAuthorization(t *testing.T) {
	repo := newFakeRepo()
	conv, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)

	uc := NewGetMessagesUseCase(repo)

	_, err = uc.Execute(context.Background(), GetMessagesInput{ConversationID: conv.ID, CallerID: "intruder"})
	assert.ErrorIs(t, err, chat.ErrNotParticipant)

	_, err = uc.Execute(context.Background(), GetMessagesInput{ConversationID: "missing", CallerID: "s1"})
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)

	for _, caller := range []string{"s1", "l1"} {
		_, err = uc.Execute(context.Background(), GetMessagesInput{ConversationID: conv.ID, CallerID: caller})
		assert.NoError(t, err)
	}
}

func TestJoinConversationAuthorization(t *testing.T) {
	repo := newFakeRepo()
	conv, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)

	uc := NewJoinConversationUseCase(repo)

	assert.NoError(t, uc.Execute(context.Background(), JoinConversationInput{ConversationID: conv.ID, UserID: "s1"}))
	assert.NoError(t, uc.Execute(context.Background(), JoinConversationInput{ConversationID: conv.ID, UserID: "l1"}))
	assert.ErrorIs(t, uc.Execute(context.Background(), JoinConversationInput{ConversationID: conv.ID, UserID: "s2"}), chat.ErrNotParticipant)
	assert.ErrorIs(t, uc.Execute(context.Background(), JoinConversationInput{ConversationID: "missing", UserID: "s1"}), chat.ErrConversationNotFound)
}

func TestListConversationsCacheAside(t *testing.T) {
	repo := newFakeRepo()
	_, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)

	cache := newMemoryCache()
	uc := NewListConversationsUseCase(repo, cache)
	in := ListConversationsInput{UserID: "s1", Role: chat.RoleStudent}

	first, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.listCalls)

	second, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].CounterpartName, second[0].CounterpartName)
	assert.True(t, first[0].UpdatedAt.Equal(second[0].UpdatedAt))
	assert.Equal(t, 1, repo.listCalls, "warm cache serves without touching the repository")

	// invalidation forces a reload
	_, err = cache.Del(context.Background(), ListCacheKey(chat.RoleStudent, "s1"))
	require.NoError(t, err)
	_, err = uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestListConversationsWithoutCache(t *testing.T) {
	repo := newFakeRepo()
	_, err := repo.CreateConversation(context.Background(), "s1", "l1", nil)
	require.NoError(t, err)

	uc := NewListConversationsUseCase(repo, nil)
	out, err := uc.Execute(context.Background(), ListConversationsInput{UserID: "l1", Role: chat.RoleLandlord})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = uc.Execute(context.Background(), ListConversationsInput{UserID: "l1", Role: "admin"})
	assert.ErrorIs(t, err, chat.ErrInvalidRole)
}
