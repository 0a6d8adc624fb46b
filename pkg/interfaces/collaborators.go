package interfaces

import (
	"context"
	"time"

	"mentorhub/pkg/types"
)

// Claims is the decoded content of a verified bearer credential.
type Claims struct {
	AccountID string
	Role      types.Role
	Email     string
	ExpiresAt time.Time
}

// CredentialVerifier validates a raw bearer credential. Failures are
// connection-fatal; the caller rejects before any event handling begins.
type CredentialVerifier interface {
	Verify(token string) (*Claims, error)
}

// ProfileDirectory looks up role-specific profiles by account id. Missing
// profiles are reported with ErrProfileNotFound and are non-fatal for
// identity resolution.
type ProfileDirectory interface {
	FindStudentByAccount(ctx context.Context, accountID string) (*types.Profile, error)
	FindMentorByAccount(ctx context.Context, accountID string) (*types.Profile, error)
	FindCompanyByAccount(ctx context.Context, accountID string) (*types.Profile, error)
}

// SessionDirectory reads session records owned by the external booking flow.
type SessionDirectory interface {
	FindSessionByID(ctx context.Context, sessionID string) (*types.Session, error)
}
