package database

import (
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change. Migrations are embedded in the
// binary and applied in declaration order inside a transaction each.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations is the full schema history. Append only; never edit an applied
// entry.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "sessions table with verbatim schedule triple",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id                 TEXT PRIMARY KEY,
				student_profile_id TEXT NOT NULL,
				mentor_profile_id  TEXT NOT NULL,
				date               TEXT NOT NULL,
				start_time         TEXT NOT NULL,
				duration_minutes   INTEGER NOT NULL CHECK (duration_minutes > 0),
				status             TEXT NOT NULL DEFAULT 'scheduled'
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_student ON sessions(student_profile_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_mentor ON sessions(mentor_profile_id);
		`,
	},
	{
		Version:     "002",
		Description: "chat messages keyed for session/time range scans",
		SQL: `
			CREATE TABLE IF NOT EXISTS messages (
				seq               INTEGER PRIMARY KEY AUTOINCREMENT,
				id                TEXT NOT NULL UNIQUE,
				session_id        TEXT NOT NULL REFERENCES sessions(id),
				sender_account_id TEXT NOT NULL,
				sender_role       TEXT NOT NULL CHECK (sender_role IN ('student', 'mentor')),
				body              TEXT NOT NULL,
				created_at        DATETIME NOT NULL,
				deleted           INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_messages_session_time ON messages(session_id, created_at, seq);
		`,
	},
	{
		Version:     "003",
		Description: "idempotent read receipts",
		SQL: `
			CREATE TABLE IF NOT EXISTS read_receipts (
				message_id        TEXT NOT NULL REFERENCES messages(id),
				reader_account_id TEXT NOT NULL,
				read_at           DATETIME NOT NULL,
				PRIMARY KEY (message_id, reader_account_id)
			);
		`,
	},
	{
		Version:     "004",
		Description: "role profiles backing identity resolution",
		SQL: `
			CREATE TABLE IF NOT EXISTS profiles (
				account_id   TEXT NOT NULL,
				role         TEXT NOT NULL CHECK (role IN ('student', 'mentor', 'company')),
				profile_id   TEXT NOT NULL,
				display_name TEXT NOT NULL,
				email        TEXT NOT NULL,
				PRIMARY KEY (account_id, role)
			);
			CREATE INDEX IF NOT EXISTS idx_profiles_profile ON profiles(profile_id);
		`,
	},
}

// MigrationManager applies embedded migrations and tracks applied versions in
// a schema_migrations table.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for the given connection.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies every pending migration in order.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// apply runs one migration inside a transaction so partial schema changes
// never persist.
func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}
