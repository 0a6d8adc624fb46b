package router

import (
	"context"
	"log"

	"mentorhub/internal/gate"
	"mentorhub/internal/presence"
	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

// Router moves events between live connections: session room joins/leaves
// with arrival and departure notices, room multicast with sender exclusion,
// and role-scoped channel multicast for the notification dispatcher.
//
// Delivery is best-effort: a failed write to one member is logged and never
// blocks delivery to the rest.
type Router struct {
	accessGate *gate.Gate
	registry   *presence.Registry
}

// NewRouter creates a router over the given gate and presence registry.
func NewRouter(accessGate *gate.Gate, registry *presence.Registry) *Router {
	return &Router{
		accessGate: accessGate,
		registry:   registry,
	}
}

// JoinSession runs the access gate and, on admit, registers the connection in
// the session room, notifies existing members of the arrival (excluding the
// joiner), and returns the member snapshot for the joiner's online-users
// view. A denial is returned to the caller only; it is never broadcast.
func (r *Router) JoinSession(ctx context.Context, sessionID string, conn interfaces.Connection) (gate.Decision, []types.PresenceEntry, error) {
	identity := conn.GetIdentity()

	decision, err := r.accessGate.Check(ctx, sessionID, identity)
	if err != nil {
		return gate.Decision{}, nil, err
	}
	if !decision.Admitted {
		return decision, nil, nil
	}

	entry := types.PresenceEntry{
		ConnectionID: conn.GetID(),
		AccountID:    identity.AccountID,
		Role:         identity.Role,
		DisplayName:  identity.DisplayName,
	}
	if err := r.registry.JoinRoom(sessionID, &presence.Member{Entry: entry, Conn: conn}); err != nil {
		return gate.Decision{}, nil, err
	}

	r.BroadcastToRoom(sessionID, types.ServerEvent{
		Event: types.EventUserOnline,
		Data:  entry,
	}, conn.GetID())

	log.Printf("Room joined: session=%s conn=%s account=%s role=%s",
		sessionID, entry.ConnectionID, entry.AccountID, entry.Role)

	return decision, r.registry.RoomPresence(sessionID), nil
}

// LeaveSession removes one connection from a room and notifies the remaining
// members. Safe to call for a connection that never joined.
func (r *Router) LeaveSession(sessionID string, conn interfaces.Connection) {
	identity := conn.GetIdentity()
	r.registry.LeaveRoom(sessionID, conn.GetID())

	r.BroadcastToRoom(sessionID, types.ServerEvent{
		Event: types.EventUserOffline,
		Data: types.PresenceEntry{
			ConnectionID: conn.GetID(),
			AccountID:    identity.AccountID,
			Role:         identity.Role,
			DisplayName:  identity.DisplayName,
		},
	}, "")

	log.Printf("Room left: session=%s conn=%s account=%s", sessionID, conn.GetID(), identity.AccountID)
}

// Disconnect removes every presence entry for a connection and notifies each
// room it was in. Cleanup happens inside the registry lock, so no broadcast
// that follows can hit the stale entries.
func (r *Router) Disconnect(conn interfaces.Connection) {
	identity := conn.GetIdentity()
	entry := types.PresenceEntry{
		ConnectionID: conn.GetID(),
		AccountID:    identity.AccountID,
		Role:         identity.Role,
		DisplayName:  identity.DisplayName,
	}

	for _, sessionID := range r.registry.Drop(conn.GetID()) {
		r.BroadcastToRoom(sessionID, types.ServerEvent{
			Event: types.EventUserOffline,
			Data:  entry,
		}, "")
	}
}

// BroadcastToRoom multicasts an event to every room member except the given
// connection id (empty means no exclusion). Returns the number of recipients;
// an empty or absent room is a no-op, not an error.
func (r *Router) BroadcastToRoom(sessionID string, event types.ServerEvent, excludeConnectionID string) int {
	delivered := 0
	for _, member := range r.registry.RoomMembers(sessionID) {
		if member.Entry.ConnectionID == excludeConnectionID {
			continue
		}
		if err := member.Conn.WriteJSON(event); err != nil {
			log.Printf("Failed to deliver %s to conn %s: %v", event.Event, member.Entry.ConnectionID, err)
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastToChannel multicasts an event to a role-scoped channel. Returns
// the number of recipients; zero recipients is success.
func (r *Router) BroadcastToChannel(role types.Role, scope string, event types.ServerEvent) int {
	delivered := 0
	key := presence.ChannelKey{Role: role, Scope: scope}
	for _, member := range r.registry.ChannelMembers(key) {
		if err := member.Conn.WriteJSON(event); err != nil {
			log.Printf("Failed to deliver %s to conn %s: %v", event.Event, member.Entry.ConnectionID, err)
			continue
		}
		delivered++
	}
	return delivered
}
