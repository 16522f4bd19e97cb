package users

import (
	"errors"
	"time"
)

// User represents a directory account. Credential material stays in the auth
// package; grants and audit rows reference users by ID.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: user not found")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("users: email already registered")
	// ErrEmailRequired indicates a blank email.
	ErrEmailRequired = errors.New("users: email is required")
	// ErrNameRequired indicates a blank display name.
	ErrNameRequired = errors.New("users: name is required")
	// ErrPasswordTooShort indicates a password under the minimum length.
	ErrPasswordTooShort = errors.New("users: password must be at least 8 characters")
)
