package domain

// BootInfo is the per-user bootstrap payload handed to clients on page load.
// It is cached per user and rebuilt on cache miss; the session subsystem only
// guarantees its cache key is invalidated together with the rest of the
// user's namespace.
type BootInfo struct {
	User            string            `json:"user"`
	FullName        string            `json:"full_name,omitempty"`
	SessionID       string            `json:"sid"`
	MetadataVersion string            `json:"metadata_version"`
	FromCache       bool              `json:"from_cache,omitempty"`
	Messages        []string          `json:"messages,omitempty"`
	ChangeLog       []string          `json:"change_log,omitempty"`
	Defaults        map[string]string `json:"defaults,omitempty"`
}
