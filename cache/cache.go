package cache

import "context"

// Namespace scopes cache keys. Global keys hold shared state (metadata
// version, module maps, write-back markers); per-user namespaces hold
// everything that must disappear when that user is cleared, so a single
// prefix delete invalidates a user wholesale.
type Namespace struct {
	prefix string
}

// Global is the shared namespace.
var Global = Namespace{prefix: "global:"}

// User returns the namespace owned by one user.
func User(user string) Namespace {
	return Namespace{prefix: "user:" + user + ":"}
}

// Key returns the fully qualified key for key within the namespace.
func (n Namespace) Key(key string) string {
	return n.prefix + key
}

// Store is a volatile key-value store. Values are opaque bytes; encoding is
// the caller's business. A Store may become unavailable at any time, which
// read paths must treat as a miss rather than a failure.
//
//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type Store interface {
	// Get returns the value stored under key, reporting whether it was
	// present. Backend failures return a cache-unavailable error.
	Get(ctx context.Context, key string, ns Namespace) ([]byte, bool, error)

	// Set stores value under key. Last writer wins; no ordering is
	// guaranteed between writers.
	Set(ctx context.Context, key string, value []byte, ns Namespace) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string, ns Namespace) error

	// DeleteByPrefix removes every key in the namespace whose unqualified
	// name starts with prefix. An empty prefix clears the namespace.
	DeleteByPrefix(ctx context.Context, prefix string, ns Namespace) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
