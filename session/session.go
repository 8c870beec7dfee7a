package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/veggydawson/frappe/cache"
	"github.com/veggydawson/frappe/domain"
	serrors "github.com/veggydawson/frappe/errors"
	"github.com/veggydawson/frappe/internal/metrics"
)

// Cache key prefixes. Session entries live in the owner's namespace so a
// user-wide clear removes them; the routing and write-back markers are
// global because they must resolve before the owner is known.
const (
	sessionKeyPrefix      = "session:"
	sessionUserKeyPrefix  = "session_user:"
	lastDBUpdateKeyPrefix = "last_db_session_update:"
)

// Deps carries the collaborators of a session handle. One Deps value is
// shared by all requests; handles themselves are request-scoped.
type Deps struct {
	Cache    cache.Store
	Sessions domain.SessionRepository
	Users    domain.UserRepository
	Geo      GeoResolver

	// Expiry is the configured session_expiry (HH:MM:SS); empty means the
	// default.
	Expiry string

	// Lang is the request language stamped into the payload; empty leaves
	// the stored value alone.
	Lang string

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// cachedSession is the cache-side encoding of a session: the payload plus
// enough identity to rebuild a handle from a bare sid.
type cachedSession struct {
	SID  string             `json:"sid"`
	User string             `json:"user"`
	Data domain.SessionData `json:"data"`
}

// Session is a request-scoped handle on one session. It is not safe for
// concurrent use; concurrent requests for the same sid each get their own
// handle and last writer wins.
type Session struct {
	deps    Deps
	sid     string
	user    string
	data    domain.SessionData
	expired bool
}

// SID returns the session id.
func (s *Session) SID() string { return s.sid }

// User returns the owning user, GuestUser for anonymous sessions.
func (s *Session) User() string { return s.user }

// Data returns a copy of the session payload.
func (s *Session) Data() domain.SessionData { return s.data }

// IsGuest reports whether this is the shared anonymous session.
func (s *Session) IsGuest() bool { return s.user == domain.GuestUser }

// Expired reports whether Resume found the prior session gone, so the HTTP
// layer can clear client-side cookies.
func (s *Session) Expired() bool { return s.expired }

// newSID allocates a random, unguessable session id.
func newSID() string {
	return uuid.NewString()
}

// Start creates a new session for a verified user (or the guest when user is
// empty). Non-guest sessions get a durable row, a cache entry, and a
// last-login stamp on the user row; the guest session touches neither store.
func Start(ctx context.Context, deps Deps, user, ip, fullName string) (*Session, error) {
	if user == "" {
		user = domain.GuestUser
	}
	s := &Session{deps: deps, user: user}
	if err := s.start(ctx, ip, fullName); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context, ip, fullName string) error {
	if s.user == domain.GuestUser {
		s.sid = domain.GuestSID
	} else {
		s.sid = newSID()
	}

	now := s.deps.now()
	s.data = domain.SessionData{User: s.user, SessionIP: ip}
	if s.user != domain.GuestUser {
		s.data.LastUpdated = now
		s.data.SessionExpiry = ExpiryPeriod(s.deps.Expiry)
		s.data.FullName = fullName
		s.data.Lang = s.deps.Lang
	}
	if s.deps.Geo != nil {
		// best effort: a missing database or bad address just omits the field
		if country, err := s.deps.Geo.CountryByIP(ip); err == nil {
			s.data.SessionCountry = country
		}
	}

	if s.user == domain.GuestUser {
		return nil
	}

	if err := s.deps.Sessions.Insert(ctx, &domain.Session{
		SID:        s.sid,
		User:       s.user,
		Data:       s.data,
		LastUpdate: now,
		Status:     domain.SessionStatusActive,
	}); err != nil {
		return err
	}

	s.writeCache(ctx)
	s.setLastDBUpdate(ctx, now)

	if err := s.deps.Users.UpdateLastLogin(ctx, s.user, now, ip); err != nil {
		return err
	}

	metrics.SessionsStartedTotal.Inc()
	return nil
}

// Resume rehydrates the session for sid, cache first, durable store second.
// A sid that cannot be resolved (missing or expired) falls back to a fresh
// guest session with the Expired flag set. An empty sid is the guest.
func Resume(ctx context.Context, deps Deps, sid, ip string) (*Session, error) {
	s := &Session{deps: deps, sid: sid}
	if s.sid == "" {
		s.sid = domain.GuestSID
	}

	rec, err := s.getSessionRecord(ctx, ip)
	if err != nil {
		return nil, err
	}

	s.sid = rec.SID
	s.user = rec.User
	s.data = rec.Data
	metrics.SessionsResumedTotal.Inc()
	return s, nil
}

// getSessionRecord returns the stored record, or restarts as guest when the
// sid cannot be resolved.
func (s *Session) getSessionRecord(ctx context.Context, ip string) (*cachedSession, error) {
	rec, err := s.getSessionData(ctx)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	if s.sid != domain.GuestSID {
		s.expired = true
		metrics.SessionsExpiredTotal.Inc()
	}

	// all guests share the same session
	s.user = domain.GuestUser
	if err := s.start(ctx, ip, ""); err != nil {
		return nil, err
	}
	return &cachedSession{SID: s.sid, User: s.user, Data: s.data}, nil
}

// getSessionData resolves sid against the cache, then the durable store. The
// guest session short-circuits both.
func (s *Session) getSessionData(ctx context.Context) (*cachedSession, error) {
	if s.sid == domain.GuestSID {
		guest := domain.GuestSession()
		return &cachedSession{SID: guest.SID, User: guest.User, Data: guest.Data}, nil
	}

	if rec := s.getSessionDataFromCache(ctx); rec != nil {
		metrics.CacheHitTotal.Inc()
		return rec, nil
	}
	metrics.CacheMissTotal.Inc()
	return s.getSessionDataFromDB(ctx)
}

// getSessionDataFromCache reads the cached copy, expiring it in place when
// its payload is past the session_expiry it was stored with. Cache outages
// and corrupt entries count as misses.
func (s *Session) getSessionDataFromCache(ctx context.Context) *cachedSession {
	owner, ok, err := s.deps.Cache.Get(ctx, sessionUserKeyPrefix+s.sid, cache.Global)
	if err != nil {
		log.Warn().Err(err).Str("sid", s.sid).Msg("Cache unreachable, falling back to durable store")
		return nil
	}
	if !ok {
		return nil
	}

	raw, ok, err := s.deps.Cache.Get(ctx, sessionKeyPrefix+s.sid, cache.User(string(owner)))
	if err != nil {
		log.Warn().Err(err).Str("sid", s.sid).Msg("Cache unreachable, falling back to durable store")
		return nil
	}
	if !ok {
		return nil
	}

	var rec cachedSession
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn().Err(err).Str("sid", s.sid).Msg("Discarding undecodable cached session")
		_ = Delete(ctx, s.deps.Cache, s.deps.Sessions, s.sid, string(owner))
		return nil
	}

	expiry := ParseExpiry(rec.Data.SessionExpiry)
	if IsExpired(rec.Data.LastUpdated, s.deps.now(), expiry) {
		_ = Delete(ctx, s.deps.Cache, s.deps.Sessions, s.sid, rec.User)
		return nil
	}
	return &rec
}

// getSessionDataFromDB reads the durable row, applying the configured expiry
// at the store. A miss deletes defensively (covers dangling cache keys) and
// reports absence; the cache is repopulated lazily by the next Update.
func (s *Session) getSessionDataFromDB(ctx context.Context) (*cachedSession, error) {
	expiry := ParseExpiry(ExpiryPeriod(s.deps.Expiry))

	row, err := s.deps.Sessions.GetActive(ctx, s.sid, expiry)
	if err != nil {
		if serrors.HasCode(err, serrors.SessionNotFound) {
			_ = Delete(ctx, s.deps.Cache, s.deps.Sessions, s.sid, "")
			return nil, nil
		}
		return nil, serrors.NewDurableUnavailable(err)
	}

	rec := &cachedSession{SID: row.SID, User: row.User, Data: row.Data}
	rec.Data.User = row.User
	return rec, nil
}

// Update extends the session: the payload's last-updated stamp and the cache
// entry are refreshed on every call, the durable row only when force is set,
// no write-back marker is cached, or the last durable write is older than
// the throttle window. Returns whether a durable write happened. Guest
// sessions are a no-op.
func (s *Session) Update(ctx context.Context, force bool) (bool, error) {
	if s.user == domain.GuestUser {
		return false, nil
	}

	now := s.deps.now()
	s.data.LastUpdated = now
	if s.deps.Lang != "" {
		s.data.Lang = s.deps.Lang
	}

	// database persistence is secondary, don't update it too often
	var elapsed time.Duration
	haveMarker := false
	if raw, ok, err := s.deps.Cache.Get(ctx, lastDBUpdateKeyPrefix+s.sid, cache.Global); err != nil {
		log.Warn().Err(err).Str("sid", s.sid).Msg("Cache unreachable, persisting session without throttle check")
	} else if ok {
		if last, perr := time.Parse(time.RFC3339Nano, string(raw)); perr == nil {
			elapsed = now.Sub(last)
			haveMarker = true
		}
	}

	updatedInDB := false
	if force || !haveMarker || elapsed > dbUpdateThrottle {
		if err := s.deps.Sessions.Update(ctx, s.sid, s.data, now); err != nil {
			return false, err
		}
		s.setLastDBUpdate(ctx, now)
		metrics.DurableWriteTotal.Inc()
		updatedInDB = true
	} else {
		metrics.DurableWriteSkippedTotal.Inc()
	}

	s.writeCache(ctx)
	return updatedInDB, nil
}

// Delete removes every trace of this session. Safe to call on sessions that
// no longer exist.
func (s *Session) Delete(ctx context.Context) error {
	return Delete(ctx, s.deps.Cache, s.deps.Sessions, s.sid, s.user)
}

// Delete removes the cache entry, the routing and write-back markers, and
// the durable row for sid. When the owner is unknown (pass ""), it is
// recovered from the routing marker, defaulting to guest. Idempotent:
// deleting an absent session is not an error.
func Delete(ctx context.Context, store cache.Store, sessions domain.SessionRepository, sid, user string) error {
	if user == "" {
		if raw, ok, err := store.Get(ctx, sessionUserKeyPrefix+sid, cache.Global); err == nil && ok {
			user = string(raw)
		} else {
			user = domain.GuestUser
		}
	}

	// cache cleanup is best-effort; the durable delete is authoritative
	if err := store.Delete(ctx, sessionKeyPrefix+sid, cache.User(user)); err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("Failed to delete cached session entry")
	}
	if err := store.Delete(ctx, sessionUserKeyPrefix+sid, cache.Global); err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("Failed to delete session routing marker")
	}
	if err := store.Delete(ctx, lastDBUpdateKeyPrefix+sid, cache.Global); err != nil {
		log.Warn().Err(err).Str("sid", sid).Msg("Failed to delete write-back marker")
	}

	return sessions.Delete(ctx, sid)
}

// writeCache stores the session entry in the owner's namespace plus the
// global routing marker. Failures degrade to cacheless operation.
func (s *Session) writeCache(ctx context.Context) {
	raw, err := json.Marshal(cachedSession{SID: s.sid, User: s.user, Data: s.data})
	if err != nil {
		log.Error().Err(err).Str("sid", s.sid).Msg("Failed to encode session for cache")
		return
	}

	if err := s.deps.Cache.Set(ctx, sessionKeyPrefix+s.sid, raw, cache.User(s.user)); err != nil {
		log.Warn().Err(err).Str("sid", s.sid).Msg("Cache write failed, session served from durable store only")
		return
	}
	if err := s.deps.Cache.Set(ctx, sessionUserKeyPrefix+s.sid, []byte(s.user), cache.Global); err != nil {
		log.Warn().Err(err).Str("sid", s.sid).Msg("Failed to write session routing marker")
	}
}

// setLastDBUpdate refreshes the cached timestamp of the most recent durable
// write, which drives the write-back throttle.
func (s *Session) setLastDBUpdate(ctx context.Context, at time.Time) {
	raw := []byte(at.Format(time.RFC3339Nano))
	if err := s.deps.Cache.Set(ctx, lastDBUpdateKeyPrefix+s.sid, raw, cache.Global); err != nil {
		log.Warn().Err(err).Str("sid", s.sid).Msg("Failed to write write-back marker")
	}
}
