package errors

import (
	stderrors "errors"
	"fmt"
)

// SessionError is a typed failure of the session subsystem. Infrastructure
// conditions carry their cause; domain conditions (not found, expired) are
// normally resolved to the guest identity before reaching a caller.
type SessionError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Err         error  `json:"-"`
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Error codes.
const (
	CacheUnavailable     = "cache_unavailable"
	DurableUnavailable   = "durable_unavailable"
	SessionNotFound      = "session_not_found"
	SessionExpired       = "session_expired"
	ConfigParseError     = "config_parse_error"
	GeoLookupUnavailable = "geo_lookup_unavailable"
	AccessDenied         = "access_denied"
)

// NewCacheUnavailable wraps a cache-backend failure. Read paths treat this as
// a miss and fall back to the durable store.
func NewCacheUnavailable(err error) *SessionError {
	return &SessionError{
		Code:        CacheUnavailable,
		Description: "cache backend is unreachable",
		Err:         err,
	}
}

// NewDurableUnavailable wraps a durable-store failure. There is no further
// fallback on reads, so this propagates to the caller.
func NewDurableUnavailable(err error) *SessionError {
	return &SessionError{
		Code:        DurableUnavailable,
		Description: "durable session store is unreachable",
		Err:         err,
	}
}

func NewSessionNotFound(sid string) *SessionError {
	return &SessionError{
		Code:        SessionNotFound,
		Description: fmt.Sprintf("no active session %q", sid),
	}
}

func NewSessionExpired(sid string) *SessionError {
	return &SessionError{
		Code:        SessionExpired,
		Description: fmt.Sprintf("session %q has expired", sid),
	}
}

func NewConfigParse(value string, err error) *SessionError {
	return &SessionError{
		Code:        ConfigParseError,
		Description: fmt.Sprintf("cannot parse config value %q", value),
		Err:         err,
	}
}

func NewGeoLookupUnavailable(err error) *SessionError {
	return &SessionError{
		Code:        GeoLookupUnavailable,
		Description: "geo-ip lookup is unavailable",
		Err:         err,
	}
}

func NewAccessDenied(description string) *SessionError {
	return &SessionError{
		Code:        AccessDenied,
		Description: description,
	}
}

// HasCode reports whether err is (or wraps) a SessionError with the given
// code.
func HasCode(err error, code string) bool {
	var se *SessionError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}
