package domain

import "errors"

var (
	// ErrUserAlreadyExists is returned when trying to create a user with an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned when looking up a non-existent user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when the username/password combination is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoUsername is returned when a username is required but empty.
	ErrNoUsername = errors.New("no username")
	// ErrNoPassword is returned when a password is required but empty.
	ErrNoPassword = errors.New("no password")
	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordLength bytes.
	ErrPasswordTooLong = errors.New("password too long")
)

// MaxPasswordLength is the longest password in bytes that bcrypt accepts.
const MaxPasswordLength = 72

// UserID identifies a registered user.
type UserID int64

// User represents an authenticated user in the system.
type User struct {
	ID           UserID `db:"id"`            // Unique identifier
	Username     string `db:"username"`      // Login username, case-sensitive
	PasswordHash []byte `db:"password_hash"` // bcrypt hash of the password
	CreatedAt    int64  `db:"created_at"`    // Unix timestamp of account creation
}
