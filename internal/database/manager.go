package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "mentorhub/pkg/database"
	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

// Manager implements interfaces.Database on sqlite.
//
// All writes funnel through a single goroutine; sqlite in WAL mode supports
// concurrent readers but only one writer, so serializing writes here avoids
// SQLITE_BUSY churn under concurrent connections.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and migrations, and starts
// the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if config == nil {
		config = dbconfig.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateSession persists a session record with its verbatim schedule triple.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, student_profile_id, mentor_profile_id, date, start_time, duration_minutes, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			session.StudentProfileID,
			session.MentorProfileID,
			session.Date,
			session.StartTime,
			session.DurationMinutes,
			session.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// FindSessionByID implements interfaces.SessionDirectory.
func (m *Manager) FindSessionByID(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, student_profile_id, mentor_profile_id, date, start_time, duration_minutes, status
		FROM sessions
		WHERE id = ?
	`, sessionID)

	var session types.Session
	err := row.Scan(
		&session.ID,
		&session.StudentProfileID,
		&session.MentorProfileID,
		&session.Date,
		&session.StartTime,
		&session.DurationMinutes,
		&session.Status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return &session, nil
}

// UpsertProfile inserts or replaces a role profile record.
func (m *Manager) UpsertProfile(ctx context.Context, profile *types.Profile) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT OR REPLACE INTO profiles (account_id, role, profile_id, display_name, email)
			VALUES (?, ?, ?, ?, ?)
		`,
			profile.AccountID,
			string(profile.Role),
			profile.ProfileID,
			profile.DisplayName,
			profile.Email,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert profile: %w", err)
		}
		return nil
	})
}

// FindStudentByAccount implements interfaces.ProfileDirectory.
func (m *Manager) FindStudentByAccount(ctx context.Context, accountID string) (*types.Profile, error) {
	return m.findProfile(ctx, accountID, types.RoleStudent)
}

// FindMentorByAccount implements interfaces.ProfileDirectory.
func (m *Manager) FindMentorByAccount(ctx context.Context, accountID string) (*types.Profile, error) {
	return m.findProfile(ctx, accountID, types.RoleMentor)
}

// FindCompanyByAccount implements interfaces.ProfileDirectory.
func (m *Manager) FindCompanyByAccount(ctx context.Context, accountID string) (*types.Profile, error) {
	return m.findProfile(ctx, accountID, types.RoleCompany)
}

func (m *Manager) findProfile(ctx context.Context, accountID string, role types.Role) (*types.Profile, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT account_id, role, profile_id, display_name, email
		FROM profiles
		WHERE account_id = ? AND role = ?
	`, accountID, string(role))

	var profile types.Profile
	err := row.Scan(
		&profile.AccountID,
		&profile.Role,
		&profile.ProfileID,
		&profile.DisplayName,
		&profile.Email,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	return &profile, nil
}

// InsertMessage persists a chat message. The autoincrement seq column records
// insertion order for created-at tie-breaking.
func (m *Manager) InsertMessage(ctx context.Context, message *types.ChatMessage) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, sender_account_id, sender_role, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			message.ID,
			message.SessionID,
			message.SenderAccountID,
			string(message.SenderRole),
			message.Body,
			message.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if seq, err := res.LastInsertId(); err == nil {
			message.Seq = seq
		}
		return nil
	})
}

// GetMessage loads one non-deleted message with its receipts.
func (m *Manager) GetMessage(ctx context.Context, messageID string) (*types.ChatMessage, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT seq, id, session_id, sender_account_id, sender_role, body, created_at
		FROM messages
		WHERE id = ? AND deleted = 0
	`, messageID)

	message, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to query message: %w", err)
	}

	if err := m.attachReceipts(ctx, []*types.ChatMessage{message}); err != nil {
		return nil, err
	}
	return message, nil
}

// AppendReadReceipt records a receipt once per reader. The primary key on
// (message_id, reader_account_id) makes repeats a no-op.
func (m *Manager) AppendReadReceipt(ctx context.Context, messageID, readerAccountID string, at time.Time) (bool, error) {
	var inserted bool
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO read_receipts (message_id, reader_account_id, read_at)
			VALUES (?, ?, ?)
		`, messageID, readerAccountID, at)
		if err != nil {
			return fmt.Errorf("failed to append read receipt: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read receipt result: %w", err)
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// MarkSessionRead appends receipts for every unread message in the session
// that the reader did not send.
func (m *Manager) MarkSessionRead(ctx context.Context, sessionID, readerAccountID string, at time.Time) (int, error) {
	var marked int
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO read_receipts (message_id, reader_account_id, read_at)
			SELECT id, ?, ?
			FROM messages
			WHERE session_id = ? AND deleted = 0 AND sender_account_id != ?
		`, readerAccountID, at, sessionID, readerAccountID)
		if err != nil {
			return fmt.Errorf("failed to mark session read: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read mark result: %w", err)
		}
		marked = int(n)
		return nil
	})
	return marked, err
}

// ListSessionMessages returns non-deleted messages newest-first. Callers
// reverse each page for oldest-first display.
func (m *Manager) ListSessionMessages(ctx context.Context, sessionID string, limit, offset int) ([]*types.ChatMessage, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT seq, id, session_id, sender_account_id, sender_role, body, created_at
		FROM messages
		WHERE session_id = ? AND deleted = 0
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query session messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.ChatMessage
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	if err := m.attachReceipts(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountSessionMessages returns the number of non-deleted messages.
func (m *Manager) CountSessionMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE session_id = ? AND deleted = 0",
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count session messages: %w", err)
	}
	return count, nil
}

// SoftDeleteMessage flags a message deleted; history and counts stop seeing
// it but the row and its receipts stay.
func (m *Manager) SoftDeleteMessage(ctx context.Context, messageID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "UPDATE messages SET deleted = 1 WHERE id = ?", messageID)
		if err != nil {
			return fmt.Errorf("failed to soft-delete message: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read delete result: %w", err)
		}
		if n == 0 {
			return interfaces.ErrMessageNotFound
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains pending writes and closes the connection. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*types.ChatMessage, error) {
	var message types.ChatMessage
	var role string
	err := row.Scan(
		&message.Seq,
		&message.ID,
		&message.SessionID,
		&message.SenderAccountID,
		&role,
		&message.Body,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	message.SenderRole = types.Role(role)
	message.ReadBy = []types.ReadReceipt{}
	return &message, nil
}

// attachReceipts loads read receipts for the given messages in one query.
func (m *Manager) attachReceipts(ctx context.Context, messages []*types.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[string]*types.ChatMessage, len(messages))
	placeholders := make([]string, 0, len(messages))
	args := make([]any, 0, len(messages))
	for _, message := range messages {
		byID[message.ID] = message
		placeholders = append(placeholders, "?")
		args = append(args, message.ID)
	}

	query := fmt.Sprintf(`
		SELECT message_id, reader_account_id, read_at
		FROM read_receipts
		WHERE message_id IN (%s)
		ORDER BY read_at ASC
	`, strings.Join(placeholders, ", "))

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query read receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var messageID string
		var receipt types.ReadReceipt
		if err := rows.Scan(&messageID, &receipt.ReaderAccountID, &receipt.ReadAt); err != nil {
			return fmt.Errorf("failed to scan receipt row: %w", err)
		}
		if message, ok := byID[messageID]; ok {
			message.ReadBy = append(message.ReadBy, receipt)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating receipt rows: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
