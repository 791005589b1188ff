package models

import "time"

// PrincipalKind separates the two independent session namespaces. Tokens of
// one kind never validate against the other.
type PrincipalKind string

const (
	KindAdmin    PrincipalKind = "admin"
	KindEmployee PrincipalKind = "employee"
)

// Session is the shared shape for both principal kinds. EmployeeID is set
// only for employee sessions, binding the session to exactly one employee.
type Session struct {
	SessionID      string        `json:"session_id"`
	Kind           PrincipalKind `json:"kind"`
	EmployeeID     string        `json:"employee_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// Principal is the authenticated actor resolved from a session. Admin-kind
// principals carry RoleAdmin and no employee identity.
type Principal struct {
	Kind       PrincipalKind
	EmployeeID string
	Name       string
	Role       Role
}

func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
