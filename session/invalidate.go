package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/veggydawson/frappe/cache"
	"github.com/veggydawson/frappe/domain"
	serrors "github.com/veggydawson/frappe/errors"
	"github.com/veggydawson/frappe/internal/metrics"
)

// Invalidator implements cache-wide and user-scoped invalidation plus the
// durable expiry sweep. It runs independently of request handling.
type Invalidator struct {
	store    cache.Store
	sessions domain.SessionRepository
	users    domain.UserRepository

	// expiry is the configured session_expiry used by the sweep.
	expiry string

	// adminUser is the only principal allowed to log everyone out.
	adminUser string
}

// NewInvalidator creates a new Invalidator.
func NewInvalidator(store cache.Store, sessions domain.SessionRepository, users domain.UserRepository, expiry, adminUser string) *Invalidator {
	return &Invalidator{
		store:     store,
		sessions:  sessions,
		users:     users,
		expiry:    expiry,
		adminUser: adminUser,
	}
}

// ClearUserCache removes every cache key in the user's namespace (session
// entries and the boot-info payload alike), the user's cached document, and
// their stored default values. Other users' entries are untouched.
func (inv *Invalidator) ClearUserCache(ctx context.Context, user string) error {
	if err := inv.store.DeleteByPrefix(ctx, "", cache.User(user)); err != nil {
		return err
	}
	if err := inv.store.DeleteByPrefix(ctx, "user_doc:"+user, cache.Global); err != nil {
		return err
	}
	return inv.users.ClearDefaults(ctx, user)
}

// ClearGlobalCache removes every key in the global namespace, including the
// cached metadata version and module maps, and drops the global default
// values. Write-back markers go with it; the next Update of each session
// simply persists durably again.
func (inv *Invalidator) ClearGlobalCache(ctx context.Context) error {
	if err := inv.store.DeleteByPrefix(ctx, "", cache.Global); err != nil {
		return err
	}
	return inv.users.ClearGlobalDefaults(ctx)
}

// ClearSessions deletes every durable session of user, optionally keeping
// the caller's own (pass its sid as keepSID, or empty to delete all).
func (inv *Invalidator) ClearSessions(ctx context.Context, user, keepSID string) error {
	refs, err := inv.sessions.ListByUser(ctx, user)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if keepSID != "" && ref.SID == keepSID {
			continue
		}
		if err := Delete(ctx, inv.store, inv.sessions, ref.SID, ref.User); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllSessions deletes every durable session system-wide, effectively
// logging out all users. Only the administrator may do this.
func (inv *Invalidator) ClearAllSessions(ctx context.Context, requestedBy string) error {
	if requestedBy != inv.adminUser || inv.adminUser == "" {
		return serrors.NewAccessDenied("only the administrator can clear all sessions")
	}

	refs, err := inv.sessions.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := Delete(ctx, inv.store, inv.sessions, ref.SID, ref.User); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired deletes every durable session row past the configured expiry
// and returns how many were removed. Meant to be called from a scheduler;
// this is the only place durable expiry is enforced without a read, so it
// bounds growth of stale rows that are never resumed again.
func (inv *Invalidator) SweepExpired(ctx context.Context) (int, error) {
	expiry := ParseExpiry(ExpiryPeriod(inv.expiry))

	refs, err := inv.sessions.ListExpired(ctx, expiry)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, ref := range refs {
		if err := Delete(ctx, inv.store, inv.sessions, ref.SID, ref.User); err != nil {
			log.Warn().Err(err).Str("sid", ref.SID).Msg("Failed to sweep expired session")
			continue
		}
		deleted++
		metrics.SweepDeletedTotal.Inc()
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Swept expired sessions")
	}
	return deleted, nil
}
