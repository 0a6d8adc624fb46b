package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

// DenialReason is the machine-readable code attached to a denied decision.
type DenialReason string

const (
	ReasonSessionNotFound DenialReason = "session_not_found"
	ReasonOutsideWindow   DenialReason = "outside_window"
	ReasonRoleNotAllowed  DenialReason = "role_not_allowed"
)

// Decision is the structured outcome of an access check. Business denials are
// never errors; only infrastructure faults surface as errors.
type Decision struct {
	Admitted bool
	Reason   DenialReason
	Session  *types.Session
	Window   *types.Window
}

// Message renders a human-readable denial for client display.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonSessionNotFound:
		return "session not found"
	case ReasonOutsideWindow:
		if d.Window != nil {
			return fmt.Sprintf("chat is only available from %s to %s",
				d.Window.StartsAt.Format("15:04"), d.Window.EndsAt.Format("15:04"))
		}
		return "chat is not available outside the scheduled session window"
	case ReasonRoleNotAllowed:
		return "only the session's student and mentor may access this chat"
	default:
		return ""
	}
}

// Gate decides whether a caller may access a session's chat right now. The
// same check guards room joins and history reads so history cannot leak
// outside the scheduled window or to non-participants.
type Gate struct {
	sessions interfaces.SessionDirectory
	location *time.Location
	now      func() time.Time
}

// NewGate creates a gate over the given session directory. A nil clock means
// time.Now; a nil location means the process-local zone.
func NewGate(sessions interfaces.SessionDirectory, loc *time.Location, now func() time.Time) *Gate {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{sessions: sessions, location: loc, now: now}
}

// Check loads the session, computes its window at call time, and matches the
// caller's role profile against the session participants.
func (g *Gate) Check(ctx context.Context, sessionID string, caller types.Identity) (Decision, error) {
	session, err := g.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return Decision{Reason: ReasonSessionNotFound}, nil
		}
		return Decision{}, fmt.Errorf("session lookup failed: %w", err)
	}

	window, err := session.Window(g.location)
	if err != nil {
		// Malformed schedule fields are a data fault, not a business denial.
		return Decision{}, err
	}

	if !window.Contains(g.now()) {
		// The window rides along so clients can render "chat opens at".
		return Decision{Reason: ReasonOutsideWindow, Session: session, Window: &window}, nil
	}

	switch caller.Role {
	case types.RoleStudent:
		if session.StudentProfileID != caller.ProfileID || caller.ProfileID == "" {
			return Decision{Reason: ReasonRoleNotAllowed, Session: session, Window: &window}, nil
		}
	case types.RoleMentor:
		if session.MentorProfileID != caller.ProfileID || caller.ProfileID == "" {
			return Decision{Reason: ReasonRoleNotAllowed, Session: session, Window: &window}, nil
		}
	default:
		return Decision{Reason: ReasonRoleNotAllowed, Session: session, Window: &window}, nil
	}

	return Decision{Admitted: true, Session: session, Window: &window}, nil
}
