package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/veggydawson/frappe/cache"
	"github.com/veggydawson/frappe/domain"
	serrors "github.com/veggydawson/frappe/errors"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeSessionRepo is an in-memory domain.SessionRepository sharing the test
// clock, so expiry filters behave like the real store's server-side check.
type fakeSessionRepo struct {
	mu          sync.Mutex
	rows        map[string]*domain.Session
	now         func() time.Time
	insertCount int
	updateCount int
	failReads   bool
	failWrites  bool
}

func newFakeSessionRepo(now func() time.Time) *fakeSessionRepo {
	return &fakeSessionRepo{
		rows: make(map[string]*domain.Session),
		now:  now,
	}
}

var errRepoDown = errors.New("repo down")

func (r *fakeSessionRepo) Insert(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return errRepoDown
	}
	cp := *session
	r.rows[session.SID] = &cp
	r.insertCount++
	return nil
}

func (r *fakeSessionRepo) GetActive(_ context.Context, sid string, expirySeconds int) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return nil, errRepoDown
	}
	row, ok := r.rows[sid]
	if !ok {
		return nil, serrors.NewSessionNotFound(sid)
	}
	cutoff := r.now().UTC().Add(-time.Duration(expirySeconds) * time.Second)
	if row.LastUpdate.Before(cutoff) {
		return nil, serrors.NewSessionNotFound(sid)
	}
	cp := *row
	return &cp, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, sid string, data domain.SessionData, lastUpdate time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return errRepoDown
	}
	if row, ok := r.rows[sid]; ok {
		row.Data = data
		row.LastUpdate = lastUpdate
	}
	r.updateCount++
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, sid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return errRepoDown
	}
	delete(r.rows, sid)
	return nil
}

func (r *fakeSessionRepo) ListByUser(_ context.Context, user string) ([]domain.SessionRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return nil, errRepoDown
	}
	var refs []domain.SessionRef
	for _, row := range r.rows {
		if row.User == user {
			refs = append(refs, domain.SessionRef{SID: row.SID, User: row.User})
		}
	}
	return refs, nil
}

func (r *fakeSessionRepo) ListAll(_ context.Context) ([]domain.SessionRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return nil, errRepoDown
	}
	var refs []domain.SessionRef
	for _, row := range r.rows {
		refs = append(refs, domain.SessionRef{SID: row.SID, User: row.User})
	}
	return refs, nil
}

func (r *fakeSessionRepo) ListExpired(_ context.Context, expirySeconds int) ([]domain.SessionRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return nil, errRepoDown
	}
	cutoff := r.now().UTC().Add(-time.Duration(expirySeconds) * time.Second)
	var refs []domain.SessionRef
	for _, row := range r.rows {
		if row.LastUpdate.Before(cutoff) {
			refs = append(refs, domain.SessionRef{SID: row.SID, User: row.User})
		}
	}
	return refs, nil
}

func (r *fakeSessionRepo) has(sid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[sid]
	return ok
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeUserRepo records the calls the lifecycle makes against the user store.
type fakeUserRepo struct {
	mu              sync.Mutex
	fullNames       map[string]string
	lastLogin       map[string]time.Time
	lastIP          map[string]string
	clearedDefaults []string
	clearedGlobal   bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		fullNames: make(map[string]string),
		lastLogin: make(map[string]time.Time),
		lastIP:    make(map[string]string),
	}
}

func (r *fakeUserRepo) FullName(_ context.Context, user string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fullNames[user], nil
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, user string, at time.Time, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLogin[user] = at
	r.lastIP[user] = ip
	return nil
}

func (r *fakeUserRepo) ClearDefaults(_ context.Context, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearedDefaults = append(r.clearedDefaults, user)
	return nil
}

func (r *fakeUserRepo) ClearGlobalDefaults(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearedGlobal = true
	return nil
}

// staticGeo resolves every address to one country.
type staticGeo struct {
	country string
}

func (g staticGeo) CountryByIP(string) (string, error) {
	return g.country, nil
}

// failingGeo simulates a missing or unreadable geo database.
type failingGeo struct{}

var errGeoDown = errors.New("geo database unavailable")

func (failingGeo) CountryByIP(string) (string, error) {
	return "", serrors.NewGeoLookupUnavailable(errGeoDown)
}

// downStore simulates a cache backend that is entirely unreachable.
type downStore struct{}

var errCacheDown = errors.New("cache down")

func (downStore) Get(context.Context, string, cache.Namespace) ([]byte, bool, error) {
	return nil, false, serrors.NewCacheUnavailable(errCacheDown)
}

func (downStore) Set(context.Context, string, []byte, cache.Namespace) error {
	return serrors.NewCacheUnavailable(errCacheDown)
}

func (downStore) Delete(context.Context, string, cache.Namespace) error {
	return serrors.NewCacheUnavailable(errCacheDown)
}

func (downStore) DeleteByPrefix(context.Context, string, cache.Namespace) error {
	return serrors.NewCacheUnavailable(errCacheDown)
}

func (downStore) Ping(context.Context) error {
	return serrors.NewCacheUnavailable(errCacheDown)
}

// newTestDeps wires a memory cache, fake repos, and a fake clock starting at
// a fixed instant.
func newTestDeps() (Deps, *fakeClock, *fakeSessionRepo, *fakeUserRepo, *cache.MemoryStore) {
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	repo := newFakeSessionRepo(clock.Now)
	users := newFakeUserRepo()
	store := cache.NewMemoryStore()

	deps := Deps{
		Cache:    store,
		Sessions: repo,
		Users:    users,
		Geo:      staticGeo{country: "HU"},
		Now:      clock.Now,
	}
	return deps, clock, repo, users, store
}
