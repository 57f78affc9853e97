// Package session holds the authenticated identity of a browser client. A
// session lives in a key-value slot, addressed by a signed slot cookie, and
// is either absent or fully populated.
package session

import (
	"context"
	"errors"
)

// Role classifies a user for the authorization gate.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleNurse  Role = "nurse"
	RoleDoctor Role = "doctor" // clinician
)

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleNurse, RoleDoctor:
		return true
	}
	return false
}

// ErrInvalidSession is returned by Save for partially populated sessions.
var ErrInvalidSession = errors.New("session: identity, name and a known role are required")

// Session is the record of the currently authenticated user. It never carries
// a password or token.
type Session struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// Valid reports whether every field is populated and the role is known.
func (s *Session) Valid() bool {
	return s != nil && s.Identity != "" && s.Name != "" && s.Role.Valid()
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying s.
func WithContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session placed on ctx by the gate, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
