package model

import (
	"fmt"
	"time"
)

// User represents an authentication user. Users are also the custodians
// devices get assigned to.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// MinPasswordLength is the shortest password accepted for new credentials.
const MinPasswordLength = 8

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:   3,
		RoleManager: 2,
		RoleUser:    1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleUser
}

// ValidatePassword checks the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Actor is the authenticated principal performing an operation. The
// lifecycle engine only authorizes on Role; it never authenticates.
type Actor struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

// IsAdmin reports whether the actor holds elevated privilege.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// AtLeast reports whether the actor's role meets minimum.
func (a Actor) AtLeast(minimum string) bool {
	return RoleAtLeast(a.Role, minimum)
}
