package authsession

import (
	"time"

	"github.com/hzi-braunschweig/pia-system/internal/identity"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

// RegistrationState is the per-attempt state the registration flow threads
// between steps. A fixed struct instead of an open note map keeps the carried
// data statically checkable.
type RegistrationState struct {
	// Study is the group selected at the entry gate, consumed at commit.
	Study domain.StudyID `json:"study,omitempty"`
	// PendingVerificationEmail marks that a verification link was already
	// sent for this address; a matching re-request must not resend.
	PendingVerificationEmail string `json:"pending_verification_email,omitempty"`
}

// Session models one authentication attempt. It is short-lived, never shared
// across attempts or users, and destroyed when the attempt completes or
// expires.
type Session struct {
	ID       domain.SessionID `json:"id"`
	ClientID string           `json:"client_id"`
	TabID    string           `json:"tab_id"`
	// UserID is set once the attempt has an authenticated (or newly
	// registered) user.
	UserID domain.UserID `json:"user_id"`
	// Device is a display name derived from the User-Agent at session start.
	Device string `json:"device,omitempty"`

	Registration    RegistrationState         `json:"registration"`
	RequiredActions []identity.RequiredAction `json:"required_actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New starts a session for a client with the given lifespan.
func New(clientID, tabID string, lifespan time.Duration, now time.Time) *Session {
	return &Session{
		ID:        domain.NewSessionID(),
		ClientID:  clientID,
		TabID:     tabID,
		CreatedAt: now,
		ExpiresAt: now.Add(lifespan),
	}
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) HasRequiredAction(a identity.RequiredAction) bool {
	for _, x := range s.RequiredActions {
		if x == a {
			return true
		}
	}
	return false
}

// AddRequiredAction queues an obligation on the attempt; duplicates collapse.
func (s *Session) AddRequiredAction(a identity.RequiredAction) {
	if !s.HasRequiredAction(a) {
		s.RequiredActions = append(s.RequiredActions, a)
	}
}

// RemoveRequiredAction clears an obligation from the attempt.
func (s *Session) RemoveRequiredAction(a identity.RequiredAction) {
	out := s.RequiredActions[:0]
	for _, x := range s.RequiredActions {
		if x != a {
			out = append(out, x)
		}
	}
	s.RequiredActions = out
}
