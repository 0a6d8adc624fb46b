package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"mentorhub/internal/router"
	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

// Error codes carried by the error event.
const (
	CodeInvalidPayload  = "invalid_payload"
	CodeNotInSession    = "not_in_session"
	CodeRateLimited     = "rate_limited"
	CodeMessageRejected = "message_rejected"
	CodeInternalError   = "internal_error"
	CodeUnknownEvent    = "unknown_event"
)

// Supervisor drives one connection's event lifecycle. Events arrive in read
// order and are handled one at a time, so the session membership state needs
// no coordination beyond the mutex guarding cross-goroutine reads.
//
// A connection is in at most one session room at a time. Joining a second
// session implicitly leaves the first. Room membership is the only state the
// supervisor owns; everything else is delegated.
type Supervisor struct {
	conn    interfaces.Connection
	router  *router.Router
	store   interfaces.MessageStore
	limiter *RateLimiter

	mu             sync.Mutex
	currentSession string
}

// NewSupervisor creates a supervisor bound to one connection.
func NewSupervisor(conn interfaces.Connection, r *router.Router, store interfaces.MessageStore, limiter *RateLimiter) *Supervisor {
	return &Supervisor{
		conn:    conn,
		router:  r,
		store:   store,
		limiter: limiter,
	}
}

// Session returns the session the connection currently occupies, if any.
func (s *Supervisor) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSession
}

func (s *Supervisor) setSession(sessionID string) {
	s.mu.Lock()
	s.currentSession = sessionID
	s.mu.Unlock()
}

// HandleEvent dispatches one inbound event. Failures are reported to the
// client as error events; they never tear the connection down.
func (s *Supervisor) HandleEvent(ctx context.Context, event types.ClientEvent) {
	switch event.Event {
	case types.EventJoinSession:
		s.handleJoin(ctx, event.Data)
	case types.EventSendMessage:
		s.handleSend(ctx, event.Data)
	case types.EventTypingStart:
		s.handleTyping(event.Data, types.EventUserTyping)
	case types.EventTypingStop:
		s.handleTyping(event.Data, types.EventUserStoppedTyping)
	case types.EventMarkMessageRead:
		s.handleMarkRead(ctx, event.Data)
	case types.EventLeaveSession:
		s.handleLeave(event.Data)
	default:
		s.sendError(CodeUnknownEvent, "unknown event: "+event.Event)
	}
}

// Shutdown removes the connection from every room and channel it occupies.
// Called exactly once when the read loop exits.
func (s *Supervisor) Shutdown() {
	s.setSession("")
	s.router.Disconnect(s.conn)
}

func (s *Supervisor) handleJoin(ctx context.Context, data json.RawMessage) {
	var payload types.JoinSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == "" {
		s.sendError(CodeInvalidPayload, "join-session requires a sessionId")
		return
	}

	// Joining another session implicitly leaves the current one.
	if current := s.Session(); current != "" && current != payload.SessionID {
		s.router.LeaveSession(current, s.conn)
		s.setSession("")
	}

	decision, online, err := s.router.JoinSession(ctx, payload.SessionID, s.conn)
	if err != nil {
		log.Printf("Join failed: session=%s conn=%s: %v", payload.SessionID, s.conn.GetID(), err)
		s.sendError(CodeInternalError, "failed to join session")
		return
	}
	if !decision.Admitted {
		s.write(types.ServerEvent{
			Event: types.EventAccessDenied,
			Data: types.AccessDeniedPayload{
				SessionID: payload.SessionID,
				Code:      string(decision.Reason),
				Message:   decision.Message(),
				Window:    decision.Window,
			},
		})
		return
	}
	s.setSession(payload.SessionID)

	// The roster snapshot goes out first; session-joined remains the final
	// acknowledgement of the join.
	s.write(types.ServerEvent{
		Event: types.EventOnlineUsers,
		Data: types.OnlineUsersPayload{
			SessionID:   payload.SessionID,
			OnlineUsers: online,
		},
	})

	history, err := s.store.History(ctx, payload.SessionID, 1, 0)
	if err != nil {
		// The join succeeded; a transcript fault should not undo it.
		log.Printf("History load failed: session=%s: %v", payload.SessionID, err)
		history = nil
	}

	s.write(types.ServerEvent{
		Event: types.EventSessionJoined,
		Data: types.SessionJoinedPayload{
			Session:     decision.Session,
			Window:      *decision.Window,
			OnlineUsers: online,
			History:     history,
		},
	})
}

func (s *Supervisor) handleSend(ctx context.Context, data json.RawMessage) {
	var payload types.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == "" {
		s.sendError(CodeInvalidPayload, "send-message requires a sessionId and text")
		return
	}
	if s.Session() != payload.SessionID {
		s.sendError(CodeNotInSession, "join the session before sending messages")
		return
	}

	identity := s.conn.GetIdentity()
	if !s.limiter.Allow(identity.AccountID) {
		s.sendError(CodeRateLimited, "message rate limit exceeded, slow down")
		return
	}

	message, err := s.store.Append(ctx, payload.SessionID, identity, payload.Text)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrEmptyMessage), errors.Is(err, types.ErrMessageTooLong):
			s.sendError(CodeMessageRejected, err.Error())
		default:
			log.Printf("Message persist failed: session=%s conn=%s: %v", payload.SessionID, s.conn.GetID(), err)
			s.sendError(CodeInternalError, "failed to send message")
		}
		return
	}

	s.router.BroadcastToRoom(payload.SessionID, types.ServerEvent{
		Event: types.EventNewMessage,
		Data:  message,
	}, s.conn.GetID())
}

func (s *Supervisor) handleTyping(data json.RawMessage, outEvent string) {
	var payload types.JoinSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == "" {
		s.sendError(CodeInvalidPayload, "typing events require a sessionId")
		return
	}
	if s.Session() != payload.SessionID {
		s.sendError(CodeNotInSession, "join the session before typing")
		return
	}

	identity := s.conn.GetIdentity()
	s.router.BroadcastToRoom(payload.SessionID, types.ServerEvent{
		Event: outEvent,
		Data: types.TypingPayload{
			SessionID:   payload.SessionID,
			AccountID:   identity.AccountID,
			DisplayName: identity.DisplayName,
		},
	}, s.conn.GetID())
}

func (s *Supervisor) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var payload types.MarkReadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID == "" {
		s.sendError(CodeInvalidPayload, "mark-message-read requires a messageId")
		return
	}
	current := s.Session()
	if current == "" {
		s.sendError(CodeNotInSession, "join the session before marking messages read")
		return
	}

	identity := s.conn.GetIdentity()
	message, err := s.store.MarkRead(ctx, current, payload.MessageID, identity.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrMessageNotFound):
			s.sendError(CodeInvalidPayload, "message not found")
		case errors.Is(err, interfaces.ErrSessionMismatch):
			s.sendError(CodeNotInSession, "message belongs to another session")
		default:
			log.Printf("Mark read failed: message=%s conn=%s: %v", payload.MessageID, s.conn.GetID(), err)
			s.sendError(CodeInternalError, "failed to mark message read")
		}
		return
	}

	receipt := types.ReadReceipt{ReaderAccountID: identity.AccountID}
	for _, r := range message.ReadBy {
		if r.ReaderAccountID == identity.AccountID {
			receipt = r
			break
		}
	}

	// The reader gets the event too, as confirmation.
	s.router.BroadcastToRoom(message.SessionID, types.ServerEvent{
		Event: types.EventMessageRead,
		Data: types.MessageReadPayload{
			MessageID:       message.ID,
			SessionID:       message.SessionID,
			ReaderAccountID: identity.AccountID,
			Receipt:         receipt,
		},
	}, "")
}

func (s *Supervisor) handleLeave(data json.RawMessage) {
	var payload types.JoinSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionID == "" {
		s.sendError(CodeInvalidPayload, "leave-session requires a sessionId")
		return
	}
	if s.Session() != payload.SessionID {
		return
	}
	s.setSession("")
	s.router.LeaveSession(payload.SessionID, s.conn)
}

func (s *Supervisor) sendError(code, message string) {
	s.write(types.ServerEvent{
		Event: types.EventError,
		Data:  types.ErrorPayload{Code: code, Message: message},
	})
}

func (s *Supervisor) write(event types.ServerEvent) {
	if err := s.conn.WriteJSON(event); err != nil {
		log.Printf("Failed to write %s to conn %s: %v", event.Event, s.conn.GetID(), err)
	}
}
