package user

import (
	"context"

	"github.com/mkrupp/homecase-filevault/internal/domain"
)

// Repository defines the interface for user data persistence.
type Repository interface {
	// CreateUser adds a new user to the repository and returns its id.
	// Returns ErrUserAlreadyExists if the username is already taken.
	CreateUser(ctx context.Context, username string, passwordHash []byte) (domain.UserID, error)

	// GetUserByUsername retrieves a user by exact, case-sensitive username.
	// Returns ErrUserNotFound if there is no such user.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetUserByID retrieves a user by id.
	// Returns ErrUserNotFound if there is no such user.
	GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
}
