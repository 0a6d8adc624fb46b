package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"mentorhub/internal/gate"
	"mentorhub/internal/presence"
	"mentorhub/internal/router"
	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

// fakeConn records everything written to it.
type fakeConn struct {
	id       string
	identity types.Identity

	mu     sync.Mutex
	events []types.ServerEvent
}

func (c *fakeConn) GetID() string               { return c.id }
func (c *fakeConn) GetIdentity() types.Identity { return c.identity }
func (c *fakeConn) Close() error                { return nil }

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event, ok := v.(types.ServerEvent); ok {
		c.events = append(c.events, event)
	}
	return nil
}

func (c *fakeConn) lastEvent(t *testing.T) types.ServerEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatal("no events written")
	}
	return c.events[len(c.events)-1]
}

func (c *fakeConn) firstEvent(t *testing.T, eventName string) types.ServerEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, event := range c.events {
		if event.Event == eventName {
			return event
		}
	}
	t.Fatalf("no %s event written", eventName)
	return types.ServerEvent{}
}

func (c *fakeConn) count(eventName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, event := range c.events {
		if event.Event == eventName {
			n++
		}
	}
	return n
}

// fakeStore is an in-memory interfaces.MessageStore.
type fakeStore struct {
	mu       sync.Mutex
	messages []*types.ChatMessage
}

func (s *fakeStore) Append(ctx context.Context, sessionID string, sender types.Identity, text string) (*types.ChatMessage, error) {
	body, err := types.ValidateMessageBody(text)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	message := &types.ChatMessage{
		ID:              "msg-" + body,
		SessionID:       sessionID,
		SenderAccountID: sender.AccountID,
		SenderRole:      sender.Role,
		Body:            body,
		CreatedAt:       time.Now().UTC(),
		ReadBy:          []types.ReadReceipt{},
	}
	s.messages = append(s.messages, message)
	return message, nil
}

func (s *fakeStore) MarkRead(ctx context.Context, sessionID, messageID, readerAccountID string) (*types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			if m.SessionID != sessionID {
				return nil, interfaces.ErrSessionMismatch
			}
			if !m.IsReadBy(readerAccountID) {
				m.ReadBy = append(m.ReadBy, types.ReadReceipt{ReaderAccountID: readerAccountID, ReadAt: time.Now().UTC()})
			}
			return m, nil
		}
	}
	return nil, interfaces.ErrMessageNotFound
}

func (s *fakeStore) receiptCount(messageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			return len(m.ReadBy)
		}
	}
	return 0
}

func (s *fakeStore) MarkAllRead(ctx context.Context, sessionID, readerAccountID string) (int, error) {
	return 0, nil
}

func (s *fakeStore) History(ctx context.Context, sessionID string, page, pageSize int) (*types.HistoryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*types.ChatMessage
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			matched = append(matched, m)
		}
	}
	return &types.HistoryPage{Messages: matched, Total: len(matched), Page: 1, PageSize: 50}, nil
}

type stubSessions struct {
	sessions map[string]*types.Session
}

func (s *stubSessions) FindSessionByID(ctx context.Context, sessionID string) (*types.Session, error) {
	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	return nil, interfaces.ErrSessionNotFound
}

type fixture struct {
	router  *router.Router
	store   *fakeStore
	limiter *RateLimiter
}

func newFixture() *fixture {
	session := &types.Session{
		ID:               "sess-1",
		StudentProfileID: "student-prof-1",
		MentorProfileID:  "mentor-prof-1",
		Date:             "2026-03-10",
		StartTime:        "14:00",
		DurationMinutes:  30,
	}
	clock := func() time.Time { return time.Date(2026, 3, 10, 14, 15, 0, 0, time.UTC) }
	accessGate := gate.NewGate(&stubSessions{sessions: map[string]*types.Session{"sess-1": session}}, time.UTC, clock)
	return &fixture{
		router:  router.NewRouter(accessGate, presence.NewRegistry()),
		store:   &fakeStore{},
		limiter: NewRateLimiter(),
	}
}

func (f *fixture) supervisor(conn *fakeConn) *Supervisor {
	return NewSupervisor(conn, f.router, f.store, f.limiter)
}

func studentFake(id string) *fakeConn {
	return &fakeConn{id: id, identity: types.Identity{
		AccountID: "acc-s", Role: types.RoleStudent, ProfileID: "student-prof-1", DisplayName: "Student",
	}}
}

func mentorFake(id string) *fakeConn {
	return &fakeConn{id: id, identity: types.Identity{
		AccountID: "acc-m", Role: types.RoleMentor, ProfileID: "mentor-prof-1", DisplayName: "Mentor",
	}}
}

func clientEvent(t *testing.T, name string, payload any) types.ClientEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.ClientEvent{Event: name, Data: data}
}

func join(t *testing.T, s *Supervisor, sessionID string) {
	t.Helper()
	s.HandleEvent(context.Background(), clientEvent(t, types.EventJoinSession, types.JoinSessionPayload{SessionID: sessionID}))
}

func TestJoinSessionDeliversJoinedEvent(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)

	join(t, supervisor, "sess-1")

	event := conn.lastEvent(t)
	if event.Event != types.EventSessionJoined {
		t.Fatalf("event = %s, want session-joined", event.Event)
	}
	payload := event.Data.(types.SessionJoinedPayload)
	if payload.Session == nil || payload.Session.ID != "sess-1" {
		t.Error("session missing from payload")
	}
	if len(payload.OnlineUsers) != 1 {
		t.Errorf("online users = %d, want 1 (the joiner)", len(payload.OnlineUsers))
	}
	if payload.History == nil {
		t.Error("history missing from payload")
	}
	if supervisor.Session() != "sess-1" {
		t.Errorf("supervisor session = %q", supervisor.Session())
	}
}

func TestJoinSessionDenied(t *testing.T) {
	f := newFixture()
	outsider := &fakeConn{id: "conn-x", identity: types.Identity{
		AccountID: "acc-x", Role: types.RoleStudent, ProfileID: "student-prof-999",
	}}
	supervisor := f.supervisor(outsider)

	join(t, supervisor, "sess-1")

	event := outsider.lastEvent(t)
	if event.Event != types.EventAccessDenied {
		t.Fatalf("event = %s, want access-denied", event.Event)
	}
	payload := event.Data.(types.AccessDeniedPayload)
	if payload.Code != string(gate.ReasonRoleNotAllowed) {
		t.Errorf("code = %q, want role_not_allowed", payload.Code)
	}
	if supervisor.Session() != "" {
		t.Error("denied join must not record a session")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)

	join(t, supervisor, "sess-missing")

	event := conn.lastEvent(t)
	if event.Event != types.EventAccessDenied {
		t.Fatalf("event = %s, want access-denied", event.Event)
	}
	if payload := event.Data.(types.AccessDeniedPayload); payload.Code != string(gate.ReasonSessionNotFound) {
		t.Errorf("code = %q, want session_not_found", payload.Code)
	}
}

func TestSendMessageRequiresJoin(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)

	supervisor.HandleEvent(context.Background(), clientEvent(t, types.EventSendMessage,
		types.SendMessagePayload{SessionID: "sess-1", Text: "hello"}))

	event := conn.lastEvent(t)
	if event.Event != types.EventError {
		t.Fatalf("event = %s, want error", event.Event)
	}
	if payload := event.Data.(types.ErrorPayload); payload.Code != CodeNotInSession {
		t.Errorf("code = %q, want %q", payload.Code, CodeNotInSession)
	}
}

func TestSendMessageBroadcastsExcludingSender(t *testing.T) {
	f := newFixture()
	sender := studentFake("conn-a")
	receiver := mentorFake("conn-b")
	senderSup := f.supervisor(sender)
	receiverSup := f.supervisor(receiver)

	join(t, senderSup, "sess-1")
	join(t, receiverSup, "sess-1")

	senderSup.HandleEvent(context.Background(), clientEvent(t, types.EventSendMessage,
		types.SendMessagePayload{SessionID: "sess-1", Text: "hello"}))

	if got := receiver.count(types.EventNewMessage); got != 1 {
		t.Errorf("receiver new-message count = %d, want 1", got)
	}
	if got := sender.count(types.EventNewMessage); got != 0 {
		t.Errorf("sender must not receive its own message, got %d", got)
	}
}

func TestSendEmptyMessageRejected(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)
	join(t, supervisor, "sess-1")

	supervisor.HandleEvent(context.Background(), clientEvent(t, types.EventSendMessage,
		types.SendMessagePayload{SessionID: "sess-1", Text: "   "}))

	event := conn.lastEvent(t)
	if event.Event != types.EventError {
		t.Fatalf("event = %s, want error", event.Event)
	}
	if payload := event.Data.(types.ErrorPayload); payload.Code != CodeMessageRejected {
		t.Errorf("code = %q, want %q", payload.Code, CodeMessageRejected)
	}
	if len(f.store.messages) != 0 {
		t.Error("rejected message must not be persisted")
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)
	join(t, supervisor, "sess-1")

	for i := 0; i < messagesPerMinute; i++ {
		if !f.limiter.Allow("acc-s") {
			t.Fatal("budget exhausted too early")
		}
	}

	supervisor.HandleEvent(context.Background(), clientEvent(t, types.EventSendMessage,
		types.SendMessagePayload{SessionID: "sess-1", Text: "one too many"}))

	event := conn.lastEvent(t)
	if event.Event != types.EventError {
		t.Fatalf("event = %s, want error", event.Event)
	}
	if payload := event.Data.(types.ErrorPayload); payload.Code != CodeRateLimited {
		t.Errorf("code = %q, want %q", payload.Code, CodeRateLimited)
	}
}

func TestTypingEventsPassThrough(t *testing.T) {
	f := newFixture()
	typist := studentFake("conn-a")
	watcher := mentorFake("conn-b")
	typistSup := f.supervisor(typist)
	watcherSup := f.supervisor(watcher)
	join(t, typistSup, "sess-1")
	join(t, watcherSup, "sess-1")

	typistSup.HandleEvent(context.Background(), clientEvent(t, types.EventTypingStart,
		types.JoinSessionPayload{SessionID: "sess-1"}))
	typistSup.HandleEvent(context.Background(), clientEvent(t, types.EventTypingStop,
		types.JoinSessionPayload{SessionID: "sess-1"}))

	if got := watcher.count(types.EventUserTyping); got != 1 {
		t.Errorf("user-typing count = %d, want 1", got)
	}
	if got := watcher.count(types.EventUserStoppedTyping); got != 1 {
		t.Errorf("user-stopped-typing count = %d, want 1", got)
	}
	if got := typist.count(types.EventUserTyping); got != 0 {
		t.Errorf("typist must not see their own typing event, got %d", got)
	}
}

func TestMarkMessageReadBroadcasts(t *testing.T) {
	f := newFixture()
	sender := studentFake("conn-a")
	reader := mentorFake("conn-b")
	senderSup := f.supervisor(sender)
	readerSup := f.supervisor(reader)
	join(t, senderSup, "sess-1")
	join(t, readerSup, "sess-1")

	senderSup.HandleEvent(context.Background(), clientEvent(t, types.EventSendMessage,
		types.SendMessagePayload{SessionID: "sess-1", Text: "read me"}))

	readerSup.HandleEvent(context.Background(), clientEvent(t, types.EventMarkMessageRead,
		types.MarkReadPayload{MessageID: "msg-read me"}))

	// Both parties see the receipt, the sender included.
	if got := sender.count(types.EventMessageRead); got != 1 {
		t.Errorf("sender message-read count = %d, want 1", got)
	}
	if got := reader.count(types.EventMessageRead); got != 1 {
		t.Errorf("reader message-read count = %d, want 1", got)
	}

	event := reader.lastEvent(t)
	payload := event.Data.(types.MessageReadPayload)
	if payload.ReaderAccountID != "acc-m" || payload.Receipt.ReaderAccountID != "acc-m" {
		t.Errorf("receipt payload = %+v", payload)
	}
}

func TestJoinSessionEmitsOnlineUsers(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)

	join(t, supervisor, "sess-1")

	if got := conn.count(types.EventOnlineUsers); got != 1 {
		t.Fatalf("online-users count = %d, want 1", got)
	}
	payload := conn.firstEvent(t, types.EventOnlineUsers).Data.(types.OnlineUsersPayload)
	if payload.SessionID != "sess-1" {
		t.Errorf("sessionId = %q, want sess-1", payload.SessionID)
	}
	if len(payload.OnlineUsers) != 1 || payload.OnlineUsers[0].AccountID != "acc-s" {
		t.Errorf("roster = %+v, want the joiner alone", payload.OnlineUsers)
	}
}

func TestMarkMessageReadRejectsOtherSessionsMessage(t *testing.T) {
	f := newFixture()
	reader := studentFake("conn-a")
	readerSup := f.supervisor(reader)
	join(t, readerSup, "sess-1")

	message, err := f.store.Append(context.Background(), "sess-2",
		types.Identity{AccountID: "acc-z", Role: types.RoleMentor}, "elsewhere")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	readerSup.HandleEvent(context.Background(), clientEvent(t, types.EventMarkMessageRead,
		types.MarkReadPayload{MessageID: message.ID}))

	event := reader.lastEvent(t)
	if event.Event != types.EventError {
		t.Fatalf("event = %s, want error", event.Event)
	}
	if payload := event.Data.(types.ErrorPayload); payload.Code != CodeNotInSession {
		t.Errorf("code = %q, want %q", payload.Code, CodeNotInSession)
	}
	if got := f.store.receiptCount(message.ID); got != 0 {
		t.Errorf("rejected mark-read persisted %d receipts, want 0", got)
	}
	if got := reader.count(types.EventMessageRead); got != 0 {
		t.Errorf("message-read broadcast count = %d, want 0", got)
	}
}

func TestLeaveSessionClearsState(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)
	join(t, supervisor, "sess-1")

	supervisor.HandleEvent(context.Background(), clientEvent(t, types.EventLeaveSession,
		types.JoinSessionPayload{SessionID: "sess-1"}))

	if supervisor.Session() != "" {
		t.Errorf("session = %q after leave", supervisor.Session())
	}

	supervisor.HandleEvent(context.Background(), clientEvent(t, types.EventSendMessage,
		types.SendMessagePayload{SessionID: "sess-1", Text: "too late"}))
	if payload := conn.lastEvent(t).Data.(types.ErrorPayload); payload.Code != CodeNotInSession {
		t.Errorf("code = %q, want %q", payload.Code, CodeNotInSession)
	}
}

func TestShutdownCleansRoom(t *testing.T) {
	f := newFixture()
	leaver := studentFake("conn-a")
	stayer := mentorFake("conn-b")
	leaverSup := f.supervisor(leaver)
	stayerSup := f.supervisor(stayer)
	join(t, leaverSup, "sess-1")
	join(t, stayerSup, "sess-1")

	leaverSup.Shutdown()

	if got := stayer.count(types.EventUserOffline); got != 1 {
		t.Errorf("user-offline count = %d, want 1", got)
	}
}

func TestUnknownEvent(t *testing.T) {
	f := newFixture()
	conn := studentFake("conn-s")
	supervisor := f.supervisor(conn)

	supervisor.HandleEvent(context.Background(), types.ClientEvent{Event: "self-destruct"})

	if payload := conn.lastEvent(t).Data.(types.ErrorPayload); payload.Code != CodeUnknownEvent {
		t.Errorf("code = %q, want %q", payload.Code, CodeUnknownEvent)
	}
}
