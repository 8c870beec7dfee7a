package session

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/veggydawson/frappe/cache"
	"github.com/veggydawson/frappe/domain"
)

const (
	bootInfoKey        = "bootinfo"
	metadataVersionKey = "metadata_version"

	// degradedCacheMessage is shown to users when boot info had to be built
	// while the cache backend was unreachable.
	degradedCacheMessage = "Cache server not running. Please contact Administrator / Tech support"

	// cacheClearedMessage is returned by Clear.
	cacheClearedMessage = "Cache Cleared"
)

// BootInfoBuilder assembles the per-user bootstrap payload on a cache miss.
// Its contents are a collaborator's business; this package only owns the
// caching and invalidation of the result.
type BootInfoBuilder interface {
	Build(ctx context.Context, sess *Session) (*domain.BootInfo, error)
}

// BootService serves the per-user boot-info payload from cache, rebuilding
// and re-caching it on miss.
type BootService struct {
	store   cache.Store
	builder BootInfoBuilder
	inv     *Invalidator

	// disableCache bypasses the boot-info cache entirely.
	disableCache bool
}

// NewBootService creates a new BootService.
func NewBootService(store cache.Store, builder BootInfoBuilder, inv *Invalidator, disableCache bool) *BootService {
	return &BootService{
		store:        store,
		builder:      builder,
		inv:          inv,
		disableCache: disableCache,
	}
}

// Get returns the boot info for the session's user, marking FromCache when
// served from cache. A miss rebuilds the payload and re-caches it; if the
// cache backend is down the payload is still served, with a user-visible
// warning appended instead of an error.
func (b *BootService) Get(ctx context.Context, sess *Session) (*domain.BootInfo, error) {
	ns := cache.User(sess.User())

	var info *domain.BootInfo
	if !b.disableCache {
		if raw, ok, err := b.store.Get(ctx, bootInfoKey, ns); err == nil && ok {
			var cached domain.BootInfo
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				cached.FromCache = true
				info = &cached
			} else {
				log.Warn().Err(jerr).Str("user", sess.User()).Msg("Discarding undecodable cached boot info")
				_ = b.store.Delete(ctx, bootInfoKey, ns)
			}
		}
	}

	if info == nil {
		built, err := b.builder.Build(ctx, sess)
		if err != nil {
			return nil, err
		}
		info = built

		if raw, err := json.Marshal(info); err == nil {
			if serr := b.store.Set(ctx, bootInfoKey, raw, ns); serr != nil {
				log.Warn().Err(serr).Str("user", sess.User()).Msg("Failed to cache boot info")
			}
		}

		// degraded mode is a message, not a failure
		if err := b.store.Ping(ctx); err != nil {
			info.Messages = append(info.Messages, degradedCacheMessage)
		}
	}

	info.MetadataVersion = b.metadataVersion(ctx)
	return info, nil
}

// metadataVersion returns the cached metadata stamp, generating and storing
// a fresh one when absent.
func (b *BootService) metadataVersion(ctx context.Context) string {
	if raw, ok, err := b.store.Get(ctx, metadataVersionKey, cache.Global); err == nil && ok {
		return string(raw)
	}

	version := uuid.NewString()
	if err := b.store.Set(ctx, metadataVersionKey, []byte(version), cache.Global); err != nil {
		log.Warn().Err(err).Msg("Failed to store metadata version")
	}
	return version
}

// Clear is the user-triggered cache reset: it forces the session durably to
// disk, then clears the target user's namespace and the global namespace.
// An empty user clears the caller's own.
func (b *BootService) Clear(ctx context.Context, sess *Session, user string) (string, error) {
	if _, err := sess.Update(ctx, true); err != nil {
		return "", err
	}

	if user == "" {
		user = sess.User()
	}
	if err := b.inv.ClearUserCache(ctx, user); err != nil {
		return "", err
	}
	if err := b.inv.ClearGlobalCache(ctx); err != nil {
		return "", err
	}
	return cacheClearedMessage, nil
}

// StaticBootInfoBuilder is the default builder: identity fields from the
// session plus the user's stored display name. Deployments with richer
// bootstrap payloads provide their own BootInfoBuilder.
type StaticBootInfoBuilder struct {
	Users domain.UserRepository
}

// Build implements BootInfoBuilder.
func (b *StaticBootInfoBuilder) Build(ctx context.Context, sess *Session) (*domain.BootInfo, error) {
	info := &domain.BootInfo{
		User:      sess.User(),
		SessionID: sess.SID(),
		FullName:  sess.Data().FullName,
	}

	if info.FullName == "" && b.Users != nil && !sess.IsGuest() {
		if name, err := b.Users.FullName(ctx, sess.User()); err == nil {
			info.FullName = name
		}
	}
	return info, nil
}
