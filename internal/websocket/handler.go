package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mentorhub/internal/presence"
	"mentorhub/internal/router"
	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's edge proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// IdentityResolver turns a raw credential into a full identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*types.Identity, error)
}

// Handler upgrades HTTP requests to WebSocket connections, resolves the
// caller's identity, subscribes the connection to its role channel, and runs
// the per-connection read loop.
type Handler struct {
	resolver IdentityResolver
	router   *router.Router
	registry *presence.Registry
	store    interfaces.MessageStore
	limiter  *RateLimiter
	tuning   Tuning
}

// NewHandler creates a WebSocket handler. Zero-value tuning fields take the
// package defaults.
func NewHandler(resolver IdentityResolver, r *router.Router, registry *presence.Registry, store interfaces.MessageStore, limiter *RateLimiter, tuning Tuning) *Handler {
	return &Handler{
		resolver: resolver,
		router:   r,
		registry: registry,
		store:    store,
		limiter:  limiter,
		tuning:   tuning.withDefaults(),
	}
}

// HandleWebSocket authenticates and upgrades one connection request. The
// credential rides in the token query parameter or an Authorization bearer
// header; browsers cannot set headers on WebSocket requests, hence the query
// fallback.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "Missing credential: provide token query parameter or Authorization header", http.StatusUnauthorized)
		return
	}

	identity, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		http.Error(w, "Invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, *identity, h.tuning)
	h.subscribeRoleChannel(wsConn)

	log.Printf("Connection opened: conn=%s account=%s role=%s",
		wsConn.GetID(), identity.AccountID, identity.Role)

	go h.handleConnection(wsConn)
}

// subscribeRoleChannel puts the connection on its role-scoped notification
// channel. Admins share the global channel; the other roles are scoped by
// profile id, so an account without a profile gets no channel.
func (h *Handler) subscribeRoleChannel(conn *Connection) {
	identity := conn.GetIdentity()

	scope := identity.ProfileID
	if identity.Role == types.RoleAdmin {
		scope = types.ChannelScopeGlobal
	}
	if scope == "" {
		return
	}

	key := presence.ChannelKey{Role: identity.Role, Scope: scope}
	member := &presence.Member{
		Entry: types.PresenceEntry{
			ConnectionID: conn.GetID(),
			AccountID:    identity.AccountID,
			Role:         identity.Role,
			DisplayName:  identity.DisplayName,
		},
		Conn: conn,
	}
	if err := h.registry.Subscribe(key, member); err != nil {
		log.Printf("Channel subscribe failed: conn=%s: %v", conn.GetID(), err)
	}
}

// handleConnection runs the read loop with ping/pong heartbeat until the
// client goes away, then releases every resource the connection held.
func (h *Handler) handleConnection(conn *Connection) {
	supervisor := NewSupervisor(conn, h.router, h.store, h.limiter)

	defer func() {
		supervisor.Shutdown()
		_ = conn.Close()
		log.Printf("Connection closed: conn=%s account=%s", conn.GetID(), conn.GetIdentity().AccountID)
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.tuning.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.tuning.ReadTimeout))
	})

	ticker := time.NewTicker(h.tuning.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: conn=%s: %v", conn.GetID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event types.ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			supervisor.sendError(CodeInvalidPayload, "events must be JSON objects with an event field")
			continue
		}
		supervisor.HandleEvent(conn.ctx, event)
	}
}
