package types

import (
	"testing"
	"time"
)

func TestSessionWindow(t *testing.T) {
	session := &Session{
		ID:              "sess-1",
		Date:            "2026-03-10",
		StartTime:       "14:00",
		DurationMinutes: 30,
	}

	window, err := session.Window(time.UTC)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}

	wantStart := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	if !window.StartsAt.Equal(wantStart) {
		t.Errorf("StartsAt = %v, want %v", window.StartsAt, wantStart)
	}
	if !window.EndsAt.Equal(wantStart.Add(30 * time.Minute)) {
		t.Errorf("EndsAt = %v, want %v", window.EndsAt, wantStart.Add(30*time.Minute))
	}
}

func TestSessionWindowMalformed(t *testing.T) {
	cases := []struct {
		name    string
		session Session
	}{
		{"bad date", Session{ID: "s", Date: "10/03/2026", StartTime: "14:00", DurationMinutes: 30}},
		{"bad time", Session{ID: "s", Date: "2026-03-10", StartTime: "2pm", DurationMinutes: 30}},
		{"zero duration", Session{ID: "s", Date: "2026-03-10", StartTime: "14:00", DurationMinutes: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.session.Window(time.UTC); err == nil {
				t.Error("expected error for malformed session schedule")
			}
		})
	}
}

func TestWindowContainsIncludesBoundaries(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	window := Window{StartsAt: start, EndsAt: start.Add(30 * time.Minute)}

	if !window.Contains(start) {
		t.Error("window start should be inside the window")
	}
	if !window.Contains(window.EndsAt) {
		t.Error("window end should be inside the window")
	}
	if window.Contains(start.Add(-time.Second)) {
		t.Error("instant before the window should be outside")
	}
	if window.Contains(window.EndsAt.Add(time.Second)) {
		t.Error("instant after the window should be outside")
	}
}

func TestValidateMessageBody(t *testing.T) {
	if _, err := ValidateMessageBody(""); err != ErrEmptyMessage {
		t.Errorf("empty body: got %v, want ErrEmptyMessage", err)
	}
	if _, err := ValidateMessageBody("   \t\n"); err != ErrEmptyMessage {
		t.Errorf("whitespace body: got %v, want ErrEmptyMessage", err)
	}

	body, err := ValidateMessageBody("  hello there  ")
	if err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}
	if body != "hello there" {
		t.Errorf("body = %q, want trimmed text", body)
	}

	long := make([]byte, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := ValidateMessageBody(string(long)); err != ErrMessageTooLong {
		t.Errorf("oversized body: got %v, want ErrMessageTooLong", err)
	}
}

func TestIsValidID(t *testing.T) {
	valid := []string{"acc_1", "a", "ABC-123", "550e8400-e29b-41d4-a716-446655440000"}
	for _, id := range valid {
		if !IsValidID(id) {
			t.Errorf("IsValidID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "has space", "semi;colon", string(make([]byte, 65))}
	for _, id := range invalid {
		if IsValidID(id) {
			t.Errorf("IsValidID(%q) = true, want false", id)
		}
	}
}

func TestIsReadBy(t *testing.T) {
	msg := &ChatMessage{
		ReadBy: []ReadReceipt{{ReaderAccountID: "acc-1", ReadAt: time.Now()}},
	}
	if !msg.IsReadBy("acc-1") {
		t.Error("expected acc-1 to be a reader")
	}
	if msg.IsReadBy("acc-2") {
		t.Error("did not expect acc-2 to be a reader")
	}
}
