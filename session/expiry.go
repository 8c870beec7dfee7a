package session

import (
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultExpiry is the session lifetime used when no session_expiry is
	// configured.
	DefaultExpiry = "06:00:00"

	// defaultCachedExpirySeconds is the lifetime assumed for cached payloads
	// that carry no session_expiry of their own.
	defaultCachedExpirySeconds = 3600

	// dbUpdateThrottle bounds write amplification to the durable store:
	// outside of forced writes, a session row is rewritten at most once per
	// window.
	dbUpdateThrottle = 600 * time.Second
)

// cint coerces a numeric field leniently: malformed input counts as zero.
// Session resolution must never crash on a bad config value.
func cint(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// ParseExpiry converts an HH:MM:SS (or HH:MM) duration into seconds. A
// missing seconds field counts as zero, as does any malformed field. The
// empty string returns the default lifetime for cached payloads.
func ParseExpiry(expiry string) int {
	if expiry == "" {
		return defaultCachedExpirySeconds
	}

	parts := strings.Split(expiry, ":")
	seconds := cint(parts[0]) * 3600
	if len(parts) > 1 {
		seconds += cint(parts[1]) * 60
	}
	if len(parts) > 2 {
		seconds += cint(parts[2])
	}
	return seconds
}

// ExpiryPeriod returns the configured session_expiry normalized to HH:MM:SS,
// falling back to the default when unset. A two-field value gets its seconds
// component appended.
func ExpiryPeriod(configured string) string {
	expiry := configured
	if expiry == "" {
		expiry = DefaultExpiry
	}

	// in case seconds is missing
	if len(strings.Split(expiry, ":")) == 2 {
		expiry += ":00"
	}
	return expiry
}

// IsExpired reports whether the interval between lastUpdated and now exceeds
// expirySeconds, at second resolution. The comparison is strict: an interval
// exactly equal to the expiry is not expired. Off-by-one here changes
// observable session lifetime, so keep the boundary as-is.
func IsExpired(lastUpdated, now time.Time, expirySeconds int) bool {
	elapsed := int(now.Sub(lastUpdated) / time.Second)
	return elapsed > expirySeconds
}
