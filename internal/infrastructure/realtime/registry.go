package realtime

import (
	"log/slog"
	"sync"
)

// Group name prefixes. A connection sits in its personal user group while the
// chat-list screen is open and joins a conversation group per open chat screen.

// UserGroup names the personal broadcast group of a user.
func UserGroup(userID string) string { return "user_" + userID }

// ConversationGroup names the broadcast group of a conversation.
func ConversationGroup(conversationID string) string { return "conversation_" + conversationID }

// Registry tracks live websocket connections and their membership in named
// broadcast groups. Membership is process-local and rebuilt by clients
// re-joining after reconnect; nothing here is persisted.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*Connection            // connectionID -> connection
	groups     map[string]map[string]*Connection // groupName -> connectionID -> connection
	connGroups map[string]map[string]struct{}    // connectionID -> set of groupNames

	logger *slog.Logger
}

// NewRegistry constructs an initialized Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:      make(map[string]*Connection),
		groups:     make(map[string]map[string]*Connection),
		connGroups: make(map[string]map[string]struct{}),
		logger:     logger,
	}
}

// Admit registers a new live connection and starts its write loop. Every
// admitted connection must be dropped exactly once, on disconnect or shutdown.
func (r *Registry) Admit(conn *Connection) {
	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.connGroups[conn.ID] = make(map[string]struct{})
	r.mu.Unlock()

	conn.Start()
}

// Join adds the connection to the named group. Joining a group twice is a
// no-op, as is joining from a connection that was never admitted.
func (r *Registry) Join(group string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; !ok {
		return
	}

	members := r.groups[group]
	if members == nil {
		members = make(map[string]*Connection)
		r.groups[group] = members
	}
	members[conn.ID] = conn
	r.connGroups[conn.ID][group] = struct{}{}
}

// Leave removes the connection from the named group.
func (r *Registry) Leave(group string, conn *Connection) {
	r.mu.Lock()
	r.leaveLocked(group, conn.ID)
	r.mu.Unlock()
}

// Drop removes the connection from every group it belongs to and forgets it.
// Called on disconnect; safe to call for an already-dropped connection.
func (r *Registry) Drop(conn *Connection) {
	r.mu.Lock()
	r.dropLocked(conn.ID)
	r.mu.Unlock()
}

// Broadcast delivers payload to every connection currently in the group and
// returns the number of successful deliveries. A group with no members is a
// silent no-op. Per-connection send failures are logged and skipped so one
// dead client cannot stall the rest of the group.
func (r *Registry) Broadcast(group string, payload []byte) int {
	r.mu.RLock()
	members := r.groups[group]
	if len(members) == 0 {
		r.mu.RUnlock()
		return 0
	}
	conns := make([]*Connection, 0, len(members))
	for _, conn := range members {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			r.logger.Debug("realtime: dropped delivery",
				"group", group, "connection_id", conn.ID, "user_id", conn.UserID, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// GroupSize reports the current member count of a group.
func (r *Registry) GroupSize(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// Close terminates all tracked connections and clears registry state.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Connection)
	r.groups = make(map[string]map[string]*Connection)
	r.connGroups = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "registry shutdown")
	}
}

func (r *Registry) dropLocked(connectionID string) {
	if _, ok := r.conns[connectionID]; !ok {
		return
	}
	delete(r.conns, connectionID)

	for group := range r.connGroups[connectionID] {
		r.leaveLocked(group, connectionID)
	}
	delete(r.connGroups, connectionID)
}

func (r *Registry) leaveLocked(group string, connectionID string) {
	members := r.groups[group]
	if members == nil {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
	if memberships, ok := r.connGroups[connectionID]; ok {
		delete(memberships, group)
	}
}
