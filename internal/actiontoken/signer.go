package actiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	dErrors "github.com/hzi-braunschweig/pia-system/pkg/domain-errors"
)

// Token verification failures, ordered by how they are checked: expiry first,
// then signature, then type. Handlers map them onto the stale-link page.
var (
	ErrExpired          = dErrors.New(dErrors.CodeExpired, "verification link has expired")
	ErrInvalidSignature = dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	ErrWrongType        = dErrors.New(dErrors.CodeUnauthorized, "wrong token type")
)

// claims is the wire shape: registered claims carry sub/exp/aud/jti, the
// custom fields carry type, email and session binding.
type claims struct {
	TokenType         string `json:"typ"`
	Email             string `json:"email"`
	SessionID         string `json:"sid"`
	OriginalSessionID string `json:"oasid,omitempty"`
	jwt.RegisteredClaims
}

// Signer serializes and verifies action tokens with an HMAC key. Key
// management stays outside; this wraps the JWT library so the rest of the
// service never touches raw claims.
type Signer struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithTimeFunc overrides the clock used for issued-at and expiry checks.
func WithTimeFunc(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

func NewSigner(signingKey, issuer string, opts ...SignerOption) *Signer {
	s := &Signer{signingKey: []byte(signingKey), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign serializes a verify-email token.
func (s *Signer) Sign(token VerifyEmail) (string, error) {
	c := claims{
		TokenType: TokenTypeVerifyEmail,
		Email:     token.Email,
		SessionID: token.SessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   token.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			Issuer:    s.issuer,
			Audience:  []string{token.ClientID},
			ID:        uuid.NewString(),
		},
	}
	if !token.OriginalSessionID.IsZero() {
		c.OriginalSessionID = token.OriginalSessionID.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign action token")
	}
	return signed, nil
}

// Verify checks signature, expiry and token type, and reconstructs the token.
func (s *Signer) Verify(raw string) (*VerifyEmail, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidSignature
	}
	if c.TokenType != TokenTypeVerifyEmail {
		return nil, ErrWrongType
	}

	userID, err := domain.ParseUserID(c.Subject)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	sessionID, err := domain.ParseSessionID(c.SessionID)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	token := &VerifyEmail{
		UserID:    userID,
		Email:     c.Email,
		SessionID: sessionID,
	}
	if c.OriginalSessionID != "" {
		orig, err := domain.ParseSessionID(c.OriginalSessionID)
		if err != nil {
			return nil, ErrInvalidSignature
		}
		token.OriginalSessionID = orig
	}
	if len(c.Audience) > 0 {
		token.ClientID = c.Audience[0]
	}
	if c.ExpiresAt != nil {
		token.ExpiresAt = c.ExpiresAt.Time
	}
	return token, nil
}
