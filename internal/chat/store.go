package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

const (
	// DefaultPageSize is used when a history request does not name one.
	DefaultPageSize = 50
	// MaxPageSize caps a single history page.
	MaxPageSize = 200
)

// Store implements interfaces.MessageStore on top of the database manager.
// It owns message identity and timestamps; ordering and receipt idempotence
// live in the persistence layer.
type Store struct {
	db  interfaces.Database
	now func() time.Time
}

// NewStore creates a message store. The clock argument exists for tests; nil
// selects time.Now.
func NewStore(db interfaces.Database, now func() time.Time) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// Append validates, stamps, and persists a new message for the session.
// The returned message carries its assigned id, timestamp, and an empty
// read-receipt list.
func (s *Store) Append(ctx context.Context, sessionID string, sender types.Identity, text string) (*types.ChatMessage, error) {
	if !types.IsValidID(sessionID) {
		return nil, types.ErrInvalidSessionID
	}
	body, err := types.ValidateMessageBody(text)
	if err != nil {
		return nil, err
	}

	message := &types.ChatMessage{
		ID:              uuid.New().String(),
		SessionID:       sessionID,
		SenderAccountID: sender.AccountID,
		SenderRole:      sender.Role,
		Body:            body,
		CreatedAt:       s.now().UTC(),
		ReadBy:          []types.ReadReceipt{},
	}
	if err := s.db.InsertMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	return message, nil
}

// MarkRead records a read receipt for the message and returns the message with
// its receipts reloaded. The message must belong to sessionID; a mismatch is
// rejected with interfaces.ErrSessionMismatch before anything is written.
// Marking an already-read message is a no-op that still returns the current
// state.
func (s *Store) MarkRead(ctx context.Context, sessionID, messageID, readerAccountID string) (*types.ChatMessage, error) {
	message, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SessionID != sessionID {
		return nil, interfaces.ErrSessionMismatch
	}
	if _, err := s.db.AppendReadReceipt(ctx, messageID, readerAccountID, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.db.GetMessage(ctx, messageID)
}

// MarkAllRead receipts every unread message in the session for the reader and
// reports how many receipts were newly written.
func (s *Store) MarkAllRead(ctx context.Context, sessionID, readerAccountID string) (int, error) {
	if !types.IsValidID(sessionID) {
		return 0, types.ErrInvalidSessionID
	}
	return s.db.MarkSessionRead(ctx, sessionID, readerAccountID, s.now().UTC())
}

// History returns one page of the session transcript. Page 1 holds the most
// recent messages; within a page messages run oldest-first so clients can
// render them top to bottom.
func (s *Store) History(ctx context.Context, sessionID string, page, pageSize int) (*types.HistoryPage, error) {
	if !types.IsValidID(sessionID) {
		return nil, types.ErrInvalidSessionID
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	total, err := s.db.CountSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	messages, err := s.db.ListSessionMessages(ctx, sessionID, pageSize, offset)
	if err != nil {
		return nil, err
	}

	// The database hands back newest-first; flip the page in place.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &types.HistoryPage{
		Messages: messages,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasNext:  page*pageSize < total,
		HasPrev:  page > 1,
	}, nil
}
