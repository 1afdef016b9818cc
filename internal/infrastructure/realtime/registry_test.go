package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPeer is one admitted server-side connection plus the client socket that
// can observe what the registry delivers to it.
type testPeer struct {
	conn   *Connection
	client *websocket.Conn
}

func (p *testPeer) read(t *testing.T, timeout time.Duration) (string, bool) {
	t.Helper()
	_ = p.client.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := p.client.ReadMessage()
	if err != nil {
		return "", false
	}
	return string(data), true
}

func newTestPeer(t *testing.T, reg *Registry, userID, role string) *testPeer {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := NewConnection(userID, role, ws)
		reg.Admit(conn)
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	conn := <-accepted
	t.Cleanup(func() { reg.Drop(conn) })
	return &testPeer{conn: conn, client: client}
}

func TestBroadcastReachesEveryGroupMember(t *testing.T) {
	reg := NewRegistry(nil)
	a := newTestPeer(t, reg, "s1", "student")
	b := newTestPeer(t, reg, "l1", "landlord")

	reg.Join(ConversationGroup("c1"), a.conn)
	reg.Join(ConversationGroup("c1"), b.conn)

	delivered := reg.Broadcast(ConversationGroup("c1"), []byte(`{"type":"new_message"}`))
	assert.Equal(t, 2, delivered)

	gotA, okA := a.read(t, time.Second)
	gotB, okB := b.read(t, time.Second)
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, gotA, gotB, "both members receive the identical payload")
}

func TestBroadcastSkipsNonMembers(t *testing.T) {
	reg := NewRegistry(nil)
	member := newTestPeer(t, reg, "s1", "student")
	outsider := newTestPeer(t, reg, "s2", "student")

	reg.Join(ConversationGroup("c1"), member.conn)

	delivered := reg.Broadcast(ConversationGroup("c1"), []byte("x"))
	assert.Equal(t, 1, delivered)

	_, ok := outsider.read(t, 200*time.Millisecond)
	assert.False(t, ok, "a connection that never joined must receive nothing")
}

func TestBroadcastToEmptyGroupIsNoOp(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Equal(t, 0, reg.Broadcast(ConversationGroup("missing"), []byte("x")))
}

func TestJoinIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	p := newTestPeer(t, reg, "s1", "student")

	reg.Join(UserGroup("s1"), p.conn)
	reg.Join(UserGroup("s1"), p.conn)

	assert.Equal(t, 1, reg.GroupSize(UserGroup("s1")))
	assert.Equal(t, 1, reg.Broadcast(UserGroup("s1"), []byte("x")), "double join must not double deliver")
}

func TestJoinWithoutAdmitIsIgnored(t *testing.T) {
	reg := NewRegistry(nil)
	stray := NewConnection("s1", "student", nil)

	reg.Join(UserGroup("s1"), stray)
	assert.Equal(t, 0, reg.GroupSize(UserGroup("s1")))
}

func TestDropRemovesEveryMembership(t *testing.T) {
	reg := NewRegistry(nil)
	p := newTestPeer(t, reg, "s1", "student")

	reg.Join(UserGroup("s1"), p.conn)
	reg.Join(ConversationGroup("c1"), p.conn)
	reg.Join(ConversationGroup("c2"), p.conn)

	reg.Drop(p.conn)

	assert.Equal(t, 0, reg.GroupSize(UserGroup("s1")))
	assert.Equal(t, 0, reg.GroupSize(ConversationGroup("c1")))
	assert.Equal(t, 0, reg.GroupSize(ConversationGroup("c2")))

	// second drop is a no-op
	reg.Drop(p.conn)

	reg.mu.RLock()
	defer reg.mu.RUnlock()
	assert.Empty(t, reg.conns)
	assert.Empty(t, reg.groups)
	assert.Empty(t, reg.connGroups)
}

func TestLeaveSingleGroup(t *testing.T) {
	reg := NewRegistry(nil)
	p := newTestPeer(t, reg, "s1", "student")

	reg.Join(ConversationGroup("c1"), p.conn)
	reg.Join(UserGroup("s1"), p.conn)
	reg.Leave(ConversationGroup("c1"), p.conn)

	assert.Equal(t, 0, reg.GroupSize(ConversationGroup("c1")))
	assert.Equal(t, 1, reg.GroupSize(UserGroup("s1")), "other memberships survive a single leave")
}
