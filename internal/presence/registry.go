package presence

import (
	"sync"

	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

// ChannelKey addresses one role-scoped notification channel. Scope is
// types.ChannelScopeGlobal for admins and the profile id for the other roles.
type ChannelKey struct {
	Role  types.Role
	Scope string
}

// Member is one live connection's presence record plus its writer.
type Member struct {
	Entry types.PresenceEntry
	Conn  interfaces.Connection
}

// memberships is the reverse index for one connection, so disconnect cleanup
// can remove every room and channel entry under the registry lock.
type memberships struct {
	rooms    map[string]struct{}
	channels map[ChannelKey]struct{}
}

// Registry is the process-wide bookkeeping of which connections sit in which
// session room and which notification channel. All state is in-memory and
// dies with the process; nothing here touches storage.
//
// Entries are keyed by connection id, so one account connected from several
// devices holds several independent entries.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*Member
	channels map[ChannelKey]map[string]*Member
	byConn   map[string]*memberships
}

// NewRegistry creates an empty registry. Construct one per process at startup
// and inject it; tests build isolated instances.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[string]*Member),
		channels: make(map[ChannelKey]map[string]*Member),
		byConn:   make(map[string]*memberships),
	}
}

// JoinRoom adds a member to a session room.
func (r *Registry) JoinRoom(sessionID string, member *Member) error {
	if member == nil || member.Conn == nil {
		return ErrNilMember
	}

	connID := member.Entry.ConnectionID
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[sessionID] == nil {
		r.rooms[sessionID] = make(map[string]*Member)
	}
	r.rooms[sessionID][connID] = member
	r.track(connID).rooms[sessionID] = struct{}{}
	return nil
}

// LeaveRoom removes a connection from a session room, dropping the room map
// entirely once its member set is empty. Idempotent.
func (r *Registry) LeaveRoom(sessionID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(sessionID, connectionID)
}

// Subscribe adds a member to a role-scoped notification channel.
func (r *Registry) Subscribe(key ChannelKey, member *Member) error {
	if member == nil || member.Conn == nil {
		return ErrNilMember
	}

	connID := member.Entry.ConnectionID
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[key] == nil {
		r.channels[key] = make(map[string]*Member)
	}
	r.channels[key][connID] = member
	r.track(connID).channels[key] = struct{}{}
	return nil
}

// Unsubscribe removes a connection from a channel with the same empty-set
// cleanup rule as rooms. Idempotent.
func (r *Registry) Unsubscribe(key ChannelKey, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(key, connectionID)
}

// Drop removes every membership held by a connection and returns the session
// ids of rooms it was in, so the caller can notify remaining members. The
// whole cleanup runs under the registry lock: no broadcast that starts after
// Drop returns can observe the stale entries.
func (r *Registry) Drop(connectionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracked, ok := r.byConn[connectionID]
	if !ok {
		return nil
	}

	roomIDs := make([]string, 0, len(tracked.rooms))
	for sessionID := range tracked.rooms {
		roomIDs = append(roomIDs, sessionID)
	}

	for sessionID := range tracked.rooms {
		r.leaveRoomLocked(sessionID, connectionID)
	}
	for key := range tracked.channels {
		r.unsubscribeLocked(key, connectionID)
	}
	delete(r.byConn, connectionID)

	return roomIDs
}

// RoomMembers returns a snapshot of a room's members. Broadcast to an absent
// room sees an empty slice, never an error.
func (r *Registry) RoomMembers(sessionID string) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Member, 0, len(r.rooms[sessionID]))
	for _, member := range r.rooms[sessionID] {
		members = append(members, member)
	}
	return members
}

// RoomPresence returns the presence entries of a room for online-users
// payloads.
func (r *Registry) RoomPresence(sessionID string) []types.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]types.PresenceEntry, 0, len(r.rooms[sessionID]))
	for _, member := range r.rooms[sessionID] {
		entries = append(entries, member.Entry)
	}
	return entries
}

// ChannelMembers returns a snapshot of a channel's members.
func (r *Registry) ChannelMembers(key ChannelKey) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Member, 0, len(r.channels[key]))
	for _, member := range r.channels[key] {
		members = append(members, member)
	}
	return members
}

// Stats reports registry sizes for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"connections":     len(r.byConn),
		"active_rooms":    len(r.rooms),
		"active_channels": len(r.channels),
	}
}

func (r *Registry) track(connectionID string) *memberships {
	tracked, ok := r.byConn[connectionID]
	if !ok {
		tracked = &memberships{
			rooms:    make(map[string]struct{}),
			channels: make(map[ChannelKey]struct{}),
		}
		r.byConn[connectionID] = tracked
	}
	return tracked
}

func (r *Registry) leaveRoomLocked(sessionID, connectionID string) {
	if room, ok := r.rooms[sessionID]; ok {
		delete(room, connectionID)
		if len(room) == 0 {
			delete(r.rooms, sessionID)
		}
	}
	if tracked, ok := r.byConn[connectionID]; ok {
		delete(tracked.rooms, sessionID)
		r.untrackIfEmpty(connectionID, tracked)
	}
}

func (r *Registry) unsubscribeLocked(key ChannelKey, connectionID string) {
	if channel, ok := r.channels[key]; ok {
		delete(channel, connectionID)
		if len(channel) == 0 {
			delete(r.channels, key)
		}
	}
	if tracked, ok := r.byConn[connectionID]; ok {
		delete(tracked.channels, key)
		r.untrackIfEmpty(connectionID, tracked)
	}
}

func (r *Registry) untrackIfEmpty(connectionID string, tracked *memberships) {
	if len(tracked.rooms) == 0 && len(tracked.channels) == 0 {
		delete(r.byConn, connectionID)
	}
}
