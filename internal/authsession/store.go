package authsession

import (
	"context"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// Store persists authentication attempts. FindByID must not return expired
// sessions: an expired attempt is indistinguishable from a removed one, which
// is exactly what the token-freshness check relies on.
type Store interface {
	Save(ctx context.Context, session *Session) error
	// FindByID returns sentinel.ErrNotFound for unknown or expired sessions.
	FindByID(ctx context.Context, id domain.SessionID) (*Session, error)
	// Delete removes a session; deleting an absent session is not an error.
	Delete(ctx context.Context, id domain.SessionID) error
}
