package types

import (
	"fmt"
	"time"
)

// Role identifies one of the four connection populations.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleCompany Role = "company"
	RoleAdmin   Role = "admin"
)

// ChannelScopeGlobal is the scope id used for the admin notification channel.
// The other roles are scoped by their profile id.
const ChannelScopeGlobal = "global"

// Identity is the resolved caller of one connection. It is computed once at
// handshake time and never mutated afterwards.
//
// ProfileID is the role-specific profile id (student/mentor/company), which is
// what session participant fields reference. Admins carry no profile id.
type Identity struct {
	AccountID   string `json:"accountId"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
	ProfileID   string `json:"profileId,omitempty"`
}

// Session is a scheduled one-to-one mentoring appointment. The date/startTime/
// durationMinutes triple is stored verbatim; the access window is recomputed
// from it at request time, never at session-creation time.
type Session struct {
	ID               string `json:"id" db:"id"`
	StudentProfileID string `json:"studentProfileId" db:"student_profile_id"`
	MentorProfileID  string `json:"mentorProfileId" db:"mentor_profile_id"`
	Date             string `json:"date" db:"date"`            // "2006-01-02"
	StartTime        string `json:"startTime" db:"start_time"` // "15:04"
	DurationMinutes  int    `json:"durationMinutes" db:"duration_minutes"`
	Status           string `json:"status" db:"status"`
}

// Window is the time span during which chat for a session is permitted.
type Window struct {
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

// Contains reports whether t falls inside the window, boundaries included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.StartsAt) && !t.After(w.EndsAt)
}

// Window computes the session's active window in the given location from the
// verbatim date/startTime/duration fields.
func (s *Session) Window(loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.StartTime, loc)
	if err != nil {
		return Window{}, fmt.Errorf("session %s has malformed schedule %q %q: %w", s.ID, s.Date, s.StartTime, err)
	}
	if s.DurationMinutes <= 0 {
		return Window{}, fmt.Errorf("session %s has non-positive duration %d", s.ID, s.DurationMinutes)
	}
	return Window{
		StartsAt: start,
		EndsAt:   start.Add(time.Duration(s.DurationMinutes) * time.Minute),
	}, nil
}

// Profile is the role-specific profile record backing identity resolution.
type Profile struct {
	AccountID   string `json:"accountId" db:"account_id"`
	Role        Role   `json:"role" db:"role"`
	ProfileID   string `json:"profileId" db:"profile_id"`
	DisplayName string `json:"displayName" db:"display_name"`
	Email       string `json:"email" db:"email"`
}

// ReadReceipt is a per-reader acknowledgment that a message has been seen.
type ReadReceipt struct {
	ReaderAccountID string    `json:"readerAccountId"`
	ReadAt          time.Time `json:"readAt"`
}

// ChatMessage is a persisted session-scoped chat message.
//
// ReadBy holds at most one entry per reader account. Seq is the monotonic
// insertion order used to break created-at ties; it never leaves the server.
type ChatMessage struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"sessionId"`
	SenderAccountID string        `json:"senderAccountId"`
	SenderRole      Role          `json:"senderRole"`
	Body            string        `json:"body"`
	CreatedAt       time.Time     `json:"createdAt"`
	ReadBy          []ReadReceipt `json:"readBy"`
	Seq             int64         `json:"-"`
}

// IsReadBy reports whether the given account already has a receipt on m.
func (m *ChatMessage) IsReadBy(accountID string) bool {
	for _, r := range m.ReadBy {
		if r.ReaderAccountID == accountID {
			return true
		}
	}
	return false
}

// HistoryPage is one page of session history. Messages are ordered
// oldest-first for display; page 1 holds the most recent messages.
type HistoryPage struct {
	Messages []*ChatMessage `json:"messages"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	HasNext  bool           `json:"hasNext"`
	HasPrev  bool           `json:"hasPrev"`
}

// PresenceEntry is the ephemeral record of one live connection, used for
// broadcast targeting only. Several entries may share an account id when the
// same user is connected from multiple devices.
type PresenceEntry struct {
	ConnectionID string `json:"connectionId"`
	AccountID    string `json:"accountId"`
	Role         Role   `json:"role"`
	DisplayName  string `json:"displayName"`
}

// NotificationEvent is a transient payload pushed to currently-connected
// recipients. It mirrors, but is distinct from, the persisted notification
// records owned by the CRUD layer.
type NotificationEvent struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	EntityID  string    `json:"entityId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
