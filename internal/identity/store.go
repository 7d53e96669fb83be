package identity

import (
	"context"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// Store owns user persistence. Implementations return sentinel errors for
// infrastructure facts; services translate them into domain errors.
type Store interface {
	// Create fails with sentinel.ErrAlreadyUsed when the username or email is taken.
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id domain.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Update persists mutations to an existing user (verified flag, actions).
	Update(ctx context.Context, user *User) error
}
