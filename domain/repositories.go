package domain

import (
	"context"
	"time"
)

// SessionRepository defines durable-store access for session rows. All reads
// and writes may block on I/O and are fallible; callers decide whether a
// failure is recoverable.
type SessionRepository interface {
	// Insert stores a new session row. The SID is expected to be unique;
	// concurrent logins for the same user create independent rows.
	Insert(ctx context.Context, session *Session) error

	// GetActive returns the row for sid whose last update is within
	// expirySeconds of now. A missing or stale row reports a
	// session-not-found error.
	GetActive(ctx context.Context, sid string, expirySeconds int) (*Session, error)

	// Update overwrites the payload and last-update timestamp of sid.
	Update(ctx context.Context, sid string, data SessionData, lastUpdate time.Time) error

	// Delete removes the row for sid. Deleting an absent row is not an error.
	Delete(ctx context.Context, sid string) error

	// ListByUser returns refs for every session row owned by user.
	ListByUser(ctx context.Context, user string) ([]SessionRef, error)

	// ListAll returns refs for every session row in the store.
	ListAll(ctx context.Context) ([]SessionRef, error)

	// ListExpired returns refs for rows whose last update is older than
	// expirySeconds before now.
	ListExpired(ctx context.Context, expirySeconds int) ([]SessionRef, error)
}

// UserRepository covers the slices of the user store the session subsystem
// writes: login bookkeeping and stored default values.
type UserRepository interface {
	// FullName returns the display name for user, or empty when unknown.
	FullName(ctx context.Context, user string) (string, error)

	// UpdateLastLogin records the time and client address of a login.
	UpdateLastLogin(ctx context.Context, user string, at time.Time, ip string) error

	// ClearDefaults drops the stored default values of one user.
	ClearDefaults(ctx context.Context, user string) error

	// ClearGlobalDefaults drops the system-wide default values.
	ClearGlobalDefaults(ctx context.Context) error
}
