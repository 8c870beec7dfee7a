package domain

import "time"

const (
	// GuestUser is the shared anonymous principal. Every visitor without a
	// resolvable session is this user.
	GuestUser = "Guest"

	// GuestSID is the fixed session id of the anonymous session. It never
	// has a durable row and is never cached.
	GuestSID = "Guest"
)

// SessionStatusActive is the status stored on freshly inserted session rows.
const SessionStatusActive = "Active"

// SessionData is the per-session payload. It is a closed set of typed fields
// rather than an open map so the cached and durable copies decode identically
// and nothing stored server-side is ever interpreted as code.
type SessionData struct {
	User           string    `bson:"user" json:"user"`
	SessionIP      string    `bson:"session_ip,omitempty" json:"session_ip,omitempty"`
	LastUpdated    time.Time `bson:"last_updated,omitempty" json:"last_updated,omitempty"`
	SessionExpiry  string    `bson:"session_expiry,omitempty" json:"session_expiry,omitempty"`
	FullName       string    `bson:"full_name,omitempty" json:"full_name,omitempty"`
	SessionCountry string    `bson:"session_country,omitempty" json:"session_country,omitempty"`
	Lang           string    `bson:"lang,omitempty" json:"lang,omitempty"`
}

// Session is a durable session row. Exactly one row exists per non-guest SID;
// the guest session is never written here.
type Session struct {
	SID        string      `bson:"_id"`
	User       string      `bson:"user"`
	Data       SessionData `bson:"sessiondata"`
	LastUpdate time.Time   `bson:"lastupdate"`
	Status     string      `bson:"status"`
}

// SessionRef identifies a durable session row without its payload. Bulk
// flows enumerate refs so each delete can also clean the owner's cache keys.
type SessionRef struct {
	SID  string `bson:"_id"`
	User string `bson:"user"`
}

// GuestSession returns a fresh copy of the anonymous record. Callers get a
// value of their own so one request can never mutate another's view.
func GuestSession() *Session {
	return &Session{
		SID:    GuestSID,
		User:   GuestUser,
		Status: SessionStatusActive,
		Data:   SessionData{User: GuestUser},
	}
}
