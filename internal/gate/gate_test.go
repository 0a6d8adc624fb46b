package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

type stubDirectory struct {
	sessions map[string]*types.Session
	err      error
}

func (s *stubDirectory) FindSessionByID(ctx context.Context, sessionID string) (*types.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testSession = &types.Session{
	ID:               "sess-1",
	StudentProfileID: "student-prof-1",
	MentorProfileID:  "mentor-prof-1",
	Date:             "2026-03-10",
	StartTime:        "14:00",
	DurationMinutes:  30,
	Status:           "scheduled",
}

func newTestGate(now time.Time) *Gate {
	directory := &stubDirectory{sessions: map[string]*types.Session{"sess-1": testSession}}
	return NewGate(directory, time.UTC, fixedClock(now))
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

var (
	student = types.Identity{AccountID: "acc-s", Role: types.RoleStudent, ProfileID: "student-prof-1"}
	mentor  = types.Identity{AccountID: "acc-m", Role: types.RoleMentor, ProfileID: "mentor-prof-1"}
)

func TestCheckAdmitsParticipantInsideWindow(t *testing.T) {
	g := newTestGate(at(14, 15))

	for _, caller := range []types.Identity{student, mentor} {
		decision, err := g.Check(context.Background(), "sess-1", caller)
		if err != nil {
			t.Fatalf("Check failed for %s: %v", caller.Role, err)
		}
		if !decision.Admitted {
			t.Errorf("%s should be admitted at 14:15, denied with %s", caller.Role, decision.Reason)
		}
		if decision.Session == nil || decision.Window == nil {
			t.Errorf("admitted decision for %s should carry session and window", caller.Role)
		}
	}
}

func TestCheckDeniesOutsideWindow(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
	}{
		{"before start", at(13, 59)},
		{"after end", at(14, 31)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGate(tc.now)

			decision, err := g.Check(context.Background(), "sess-1", student)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if decision.Admitted {
				t.Fatal("should be denied outside the window")
			}
			if decision.Reason != ReasonOutsideWindow {
				t.Errorf("reason = %s, want %s", decision.Reason, ReasonOutsideWindow)
			}
			if decision.Window == nil {
				t.Fatal("outside-window denial must include the window for client display")
			}
			if !decision.Window.StartsAt.Equal(at(14, 0)) || !decision.Window.EndsAt.Equal(at(14, 30)) {
				t.Errorf("window = %v..%v, want 14:00..14:30", decision.Window.StartsAt, decision.Window.EndsAt)
			}
		})
	}
}

func TestCheckAdmitsAtWindowBoundaries(t *testing.T) {
	for _, now := range []time.Time{at(14, 0), at(14, 30)} {
		g := newTestGate(now)
		decision, err := g.Check(context.Background(), "sess-1", student)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !decision.Admitted {
			t.Errorf("boundary instant %v should be admitted", now)
		}
	}
}

func TestCheckDeniesNonParticipant(t *testing.T) {
	g := newTestGate(at(14, 15))

	otherStudent := types.Identity{AccountID: "acc-x", Role: types.RoleStudent, ProfileID: "student-prof-999"}
	decision, err := g.Check(context.Background(), "sess-1", otherStudent)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Admitted {
		t.Fatal("non-participant student must be denied even inside the window")
	}
	if decision.Reason != ReasonRoleNotAllowed {
		t.Errorf("reason = %s, want %s", decision.Reason, ReasonRoleNotAllowed)
	}
}

func TestCheckDeniesOtherRoles(t *testing.T) {
	g := newTestGate(at(14, 15))

	for _, caller := range []types.Identity{
		{AccountID: "acc-c", Role: types.RoleCompany, ProfileID: "company-prof-1"},
		{AccountID: "acc-a", Role: types.RoleAdmin},
	} {
		decision, err := g.Check(context.Background(), "sess-1", caller)
		if err != nil {
			t.Fatalf("Check failed for %s: %v", caller.Role, err)
		}
		if decision.Admitted || decision.Reason != ReasonRoleNotAllowed {
			t.Errorf("%s: admitted=%v reason=%s, want denial with %s",
				caller.Role, decision.Admitted, decision.Reason, ReasonRoleNotAllowed)
		}
	}
}

func TestCheckDeniesEmptyProfileID(t *testing.T) {
	g := newTestGate(at(14, 15))

	// A student whose profile never resolved must not match a session whose
	// participant field happens to be empty.
	noProfile := types.Identity{AccountID: "acc-s", Role: types.RoleStudent}
	decision, err := g.Check(context.Background(), "sess-1", noProfile)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Admitted {
		t.Fatal("identity without a role profile must be denied")
	}
}

func TestCheckSessionNotFound(t *testing.T) {
	g := newTestGate(at(14, 15))

	decision, err := g.Check(context.Background(), "missing", student)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision.Admitted || decision.Reason != ReasonSessionNotFound {
		t.Errorf("admitted=%v reason=%s, want denial with %s",
			decision.Admitted, decision.Reason, ReasonSessionNotFound)
	}
}

func TestCheckPropagatesInfrastructureFault(t *testing.T) {
	directory := &stubDirectory{err: errors.New("store unreachable")}
	g := NewGate(directory, time.UTC, fixedClock(at(14, 15)))

	if _, err := g.Check(context.Background(), "sess-1", student); err == nil {
		t.Error("infrastructure faults must propagate as errors")
	}
}

func TestCheckMalformedScheduleIsError(t *testing.T) {
	broken := &types.Session{
		ID:               "sess-broken",
		StudentProfileID: "student-prof-1",
		MentorProfileID:  "mentor-prof-1",
		Date:             "someday",
		StartTime:        "noonish",
		DurationMinutes:  30,
	}
	directory := &stubDirectory{sessions: map[string]*types.Session{"sess-broken": broken}}
	g := NewGate(directory, time.UTC, fixedClock(at(14, 15)))

	if _, err := g.Check(context.Background(), "sess-broken", student); err == nil {
		t.Error("malformed schedule should surface as an error, not a denial")
	}
}
