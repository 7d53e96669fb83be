package actiontoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
)

var signer = NewSigner("test-signing-key", "pia-auth")

func newToken(expiresIn time.Duration) VerifyEmail {
	return VerifyEmail{
		UserID:    domain.NewUserID(),
		Email:     "proband@example.com",
		SessionID: domain.NewSessionID(),
		ClientID:  "pia-web",
		ExpiresAt: time.Now().Add(expiresIn),
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	token := newToken(time.Hour)

	raw, err := signer.Sign(token)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	got, err := signer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, token.UserID, got.UserID)
	assert.Equal(t, token.Email, got.Email)
	assert.Equal(t, token.SessionID, got.SessionID)
	assert.Equal(t, token.ClientID, got.ClientID)
	assert.True(t, got.OriginalSessionID.IsZero())
	assert.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestVerifyExpired(t *testing.T) {
	raw, err := signer.Sign(newToken(-time.Minute))
	require.NoError(t, err)

	_, err = signer.Verify(raw)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := signer.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWrongKey(t *testing.T) {
	other := NewSigner("a-different-key", "pia-auth")
	raw, err := other.Sign(newToken(time.Hour))
	require.NoError(t, err)

	_, err = signer.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWrongType(t *testing.T) {
	// Forge a token with the right key but a different typ claim.
	c := claims{
		TokenType: "reset-password",
		Email:     "proband@example.com",
		SessionID: domain.NewSessionID().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   domain.NewUserID().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			ID:        uuid.NewString(),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = signer.Verify(raw)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestReboundPreservesOriginalSession(t *testing.T) {
	token := newToken(time.Hour)
	oldSession := token.SessionID
	newSession := domain.NewSessionID()

	rebound := token.Rebound(newSession)
	assert.Equal(t, newSession, rebound.SessionID)
	assert.Equal(t, oldSession, rebound.OriginalSessionID)
	// The source token is unchanged.
	assert.Equal(t, oldSession, token.SessionID)

	raw, err := signer.Sign(rebound)
	require.NoError(t, err)
	got, err := signer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, oldSession, got.OriginalSessionID)
	assert.Equal(t, newSession, got.SessionID)
}
