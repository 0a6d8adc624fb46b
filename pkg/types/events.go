package types

import "encoding/json"

// Client → server event names.
const (
	EventJoinSession     = "join-session"
	EventSendMessage     = "send-message"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventMarkMessageRead = "mark-message-read"
	EventLeaveSession    = "leave-session"
)

// Server → client event names.
const (
	EventSessionJoined     = "session-joined"
	EventAccessDenied      = "access-denied"
	EventNewMessage        = "new-message"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventOnlineUsers       = "online-users"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventMessageRead       = "message-read"
	EventNotification      = "notification"
	EventError             = "error"
)

// ClientEvent is the inbound wire envelope. Data stays raw until the
// supervisor knows which payload shape to decode.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the outbound wire envelope.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinSessionPayload is the data of join-session, leave-session and the
// typing events.
type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
}

// SendMessagePayload is the data of send-message.
type SendMessagePayload struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// MarkReadPayload is the data of mark-message-read.
type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

// SessionJoinedPayload is the data of session-joined.
type SessionJoinedPayload struct {
	Session     *Session        `json:"session"`
	Window      Window          `json:"window"`
	OnlineUsers []PresenceEntry `json:"onlineUsers"`
	History     *HistoryPage    `json:"history,omitempty"`
}

// OnlineUsersPayload is the data of online-users: the room roster at the
// moment the event was emitted.
type OnlineUsersPayload struct {
	SessionID   string          `json:"sessionId"`
	OnlineUsers []PresenceEntry `json:"onlineUsers"`
}

// AccessDeniedPayload is the data of access-denied. Window is set for
// outside-window denials so clients can render "chat opens at" without a
// second round trip.
type AccessDeniedPayload struct {
	SessionID string  `json:"sessionId"`
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Window    *Window `json:"window,omitempty"`
}

// TypingPayload is the data of user-typing and user-stopped-typing.
type TypingPayload struct {
	SessionID   string `json:"sessionId"`
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// MessageReadPayload is the data of message-read.
type MessageReadPayload struct {
	MessageID       string      `json:"messageId"`
	SessionID       string      `json:"sessionId"`
	ReaderAccountID string      `json:"readerAccountId"`
	Receipt         ReadReceipt `json:"receipt"`
}

// ErrorPayload is the data of the error event. Errors are per-request and
// never fatal to the connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
