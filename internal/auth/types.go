package auth

import (
	"errors"
	"regexp"
	"slices"
	"time"
)

// usernamePattern allows e-mail style usernames.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._@+-]{1,64}$`)

// IsValidUsername reports whether username is 1-64 characters of letters,
// digits and . _ @ + -.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is an authorisation tier.
type Role string

const (
	// RoleUser may claim devices and command the ones it owns.
	RoleUser Role = "user"

	// RoleAdmin may additionally onboard hardware, command any device,
	// force-release devices and read the audit log.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of assignable roles.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole reports whether r is assignable.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// User is a dashboard account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserInactive       = errors.New("auth: user account is inactive")
	ErrUsernameExists     = errors.New("auth: username already exists")
	ErrInvalidUser        = errors.New("auth: invalid user")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrForbidden          = errors.New("auth: insufficient permissions")
)
