package interfaces

import (
	"context"
	"time"

	"mentorhub/pkg/types"
)

// Database covers every persistence operation this core needs: session and
// profile lookups plus the chat message tables. A single interface keeps the
// sqlite single-writer coordination behind one implementation.
type Database interface {
	SessionDirectory
	ProfileDirectory

	// CreateSession persists a session record (used by the booking flow and
	// by seed/test fixtures; this core otherwise only reads sessions).
	CreateSession(ctx context.Context, session *types.Session) error

	// UpsertProfile inserts or replaces a role profile record.
	UpsertProfile(ctx context.Context, profile *types.Profile) error

	// InsertMessage persists a new chat message.
	InsertMessage(ctx context.Context, message *types.ChatMessage) error

	// GetMessage loads one message with its read receipts. Missing ids are
	// reported with ErrMessageNotFound.
	GetMessage(ctx context.Context, messageID string) (*types.ChatMessage, error)

	// AppendReadReceipt records that reader has seen the message. The boolean
	// reports whether a new receipt was written; repeats are silently absorbed.
	AppendReadReceipt(ctx context.Context, messageID, readerAccountID string, at time.Time) (bool, error)

	// MarkSessionRead appends receipts for every non-deleted message in the
	// session not sent by reader, skipping ones already read. Returns the
	// number of new receipts.
	MarkSessionRead(ctx context.Context, sessionID, readerAccountID string, at time.Time) (int, error)

	// ListSessionMessages returns non-deleted messages newest-first with
	// their receipts, using limit/offset for pagination.
	ListSessionMessages(ctx context.Context, sessionID string, limit, offset int) ([]*types.ChatMessage, error)

	// CountSessionMessages returns the number of non-deleted messages.
	CountSessionMessages(ctx context.Context, sessionID string) (int, error)

	// SoftDeleteMessage flags a message as deleted without removing the row.
	SoftDeleteMessage(ctx context.Context, messageID string) error

	// HealthCheck verifies connectivity.
	HealthCheck(ctx context.Context) error

	// Close shuts the store down after pending writes drain.
	Close() error
}

// MessageStore is the business-level chat persistence surface consumed by the
// connection supervisor and the REST layer.
type MessageStore interface {
	Append(ctx context.Context, sessionID string, sender types.Identity, text string) (*types.ChatMessage, error)
	MarkRead(ctx context.Context, sessionID, messageID, readerAccountID string) (*types.ChatMessage, error)
	MarkAllRead(ctx context.Context, sessionID, readerAccountID string) (int, error)
	History(ctx context.Context, sessionID string, page, pageSize int) (*types.HistoryPage, error)
}
