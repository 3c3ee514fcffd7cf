package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the single authorization tag carried by every account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ErrUnknownRole is returned by ParseRole for values other than user and admin.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole normalizes input, defaulting blank values to RoleUser.
func ParseRole(value string) (Role, error) {
	trimmed := Role(strings.ToLower(strings.TrimSpace(value)))
	if trimmed == "" {
		return RoleUser, nil
	}
	if !trimmed.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownRole, value)
	}
	return trimmed, nil
}

// Identity is the credential record owned by the identity provider.
type Identity struct {
	ID           string
	Email        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Profile is the public user record stored under users/{id}.
type Profile struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Document returns the profile as stored in the document tree (the id is the key).
func (p Profile) Document() map[string]any {
	return map[string]any{
		"name":  p.Name,
		"email": p.Email,
		"role":  string(p.Role),
	}
}

// UserPath is the document path of a profile.
func UserPath(id string) string {
	return "users/" + id
}
