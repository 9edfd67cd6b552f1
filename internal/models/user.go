package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of roles an identity can hold.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Valid returns true when the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole normalises raw into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Identity is the resolved caller threaded through every operation.
type Identity struct {
	ID             string  `json:"id"`
	DisplayName    string  `json:"display_name"`
	Email          string  `json:"email"`
	Role           Role    `json:"role"`
	DepartmentCode string  `json:"department_code"`
	Session        *string `json:"session,omitempty"`
	SectionLetter  *string `json:"section_letter,omitempty"`
}

// Is reports whether the identity holds role.
func (i Identity) Is(role Role) bool {
	return i.Role == role
}

// User represents an account stored in the users table.
type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	DisplayName    string    `db:"display_name" json:"display_name"`
	Role           Role      `db:"role" json:"role"`
	DepartmentCode string    `db:"department_code" json:"department_code"`
	Session        *string   `db:"session" json:"session,omitempty"`
	SectionLetter  *string   `db:"section_letter" json:"section_letter,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Identity projects the stored account onto the caller identity.
func (u User) Identity() Identity {
	return Identity{
		ID:             u.ID,
		DisplayName:    u.DisplayName,
		Email:          u.Email,
		Role:           u.Role,
		DepartmentCode: u.DepartmentCode,
		Session:        u.Session,
		SectionLetter:  u.SectionLetter,
	}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
