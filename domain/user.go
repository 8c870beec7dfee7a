package domain

import "time"

// User is the durable user row, reduced to the fields the session subsystem
// touches. Credential verification happens elsewhere; by the time this
// package sees a user name it is already authenticated.
type User struct {
	Name      string            `bson:"_id"`
	FullName  string            `bson:"full_name,omitempty"`
	LastLogin *time.Time        `bson:"last_login,omitempty"`
	LastIP    string            `bson:"last_ip,omitempty"`
	Defaults  map[string]string `bson:"defaults,omitempty"`
}
