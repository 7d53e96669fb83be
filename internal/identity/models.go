package identity

import (
	"slices"
	"time"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// RequiredAction is a pending obligation attached to a user that must be
// cleared before normal access resumes.
type RequiredAction string

// ActionVerifyEmail marks an account whose email ownership is unconfirmed.
const ActionVerifyEmail RequiredAction = "VERIFY_EMAIL"

// User is the identity record owned by the identity store. The verification
// protocol mutates EmailVerified and the required-action set; everything else
// belongs to account management.
type User struct {
	ID              domain.UserID
	Username        string
	Email           string
	EmailVerified   bool
	PasswordHash    string
	Roles           []string
	RequiredActions []RequiredAction
	CreatedAt       time.Time
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// GrantRole adds a role; granting twice is a no-op.
func (u *User) GrantRole(role string) {
	if !u.HasRole(role) {
		u.Roles = append(u.Roles, role)
	}
}

func (u *User) HasRequiredAction(a RequiredAction) bool {
	return slices.Contains(u.RequiredActions, a)
}

// AddRequiredAction queues an obligation; adding twice is a no-op.
func (u *User) AddRequiredAction(a RequiredAction) {
	if !u.HasRequiredAction(a) {
		u.RequiredActions = append(u.RequiredActions, a)
	}
}

// RemoveRequiredAction clears an obligation; removing an absent one is a no-op.
func (u *User) RemoveRequiredAction(a RequiredAction) {
	u.RequiredActions = slices.DeleteFunc(u.RequiredActions, func(x RequiredAction) bool {
		return x == a
	})
}
