package models

import "time"

// Role is the closed set of employee roles. Staff holds a strict subset of
// admin's capabilities; the mapping lives in the permission package.
type Role string

const (
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStaff || r == RoleAdmin
}

type Employee struct {
	EmployeeID string     `db:"employee_id" json:"employee_id"`
	Name       string     `db:"name" json:"name"`
	Role       Role       `db:"role" json:"role"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	PinHash    string     `db:"pin_hash" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
