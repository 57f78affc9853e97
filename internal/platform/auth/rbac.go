package auth

import (
	"github.com/ins/ins/internal/platform/session"
)

// GateState is the outcome of the authorization gate for one request.
type GateState int

const (
	// GateUnresolved means the session store did not answer; neither branch
	// may be rendered.
	GateUnresolved GateState = iota
	GateAuthorized
	GateUnauthorized
)

func (s GateState) String() string {
	switch s {
	case GateAuthorized:
		return "authorized"
	case GateUnauthorized:
		return "unauthorized"
	default:
		return "unresolved"
	}
}

// Decision is the resolved gate state plus the session that produced it.
type Decision struct {
	State   GateState
	Session *session.Session
	// Forbidden is set when a session exists but holds the wrong role.
	Forbidden bool
}

// Decide maps a session load result onto a gate state. An empty required
// role admits any signed-in user; otherwise the role must match exactly.
// There is no role hierarchy: an administrator does not pass a nurse gate.
func Decide(s *session.Session, loadErr error, required session.Role) Decision {
	if loadErr != nil {
		return Decision{State: GateUnresolved}
	}
	if s == nil || !s.Valid() {
		return Decision{State: GateUnauthorized}
	}
	if required != "" && s.Role != required {
		return Decision{State: GateUnauthorized, Session: s, Forbidden: true}
	}
	return Decision{State: GateAuthorized, Session: s}
}
