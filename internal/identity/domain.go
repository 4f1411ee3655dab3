// Package identity manages user accounts and resolves the acting user
// for every request.
package identity

import (
	"time"

	"github.com/buildledger/buildledger/internal/shared"
)

// Status marks whether a user account may act.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// User represents a user account.
type User struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	Role      shared.Role `json:"role"`
	Status    Status      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewUser carries the fields needed to provision an account.
type NewUser struct {
	Name     string
	Email    string
	Phone    string
	Role     shared.Role
	Password string
}
