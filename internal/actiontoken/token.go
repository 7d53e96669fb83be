package actiontoken

import (
	"time"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// TokenTypeVerifyEmail is the single action-token type this service issues.
const TokenTypeVerifyEmail = "verify-email"

// VerifyEmail is the action token embedded in a verification link. It binds a
// user, an email address and the authentication attempt the link was minted
// under. Immutable once signed; a rebind produces a new token that records
// the prior session id.
type VerifyEmail struct {
	UserID    domain.UserID
	Email     string
	SessionID domain.SessionID
	// OriginalSessionID is only set after a rebind: it preserves the session
	// the token was originally minted under.
	OriginalSessionID domain.SessionID
	ClientID          string
	ExpiresAt         time.Time
}

// Rebound returns a copy bound to a new session, recording the current
// session id as the original one.
func (t VerifyEmail) Rebound(newSession domain.SessionID) VerifyEmail {
	t.OriginalSessionID = t.SessionID
	t.SessionID = newSession
	return t
}
