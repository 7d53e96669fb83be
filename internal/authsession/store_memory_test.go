package authsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzi-braunschweig/pia-system/internal/identity"
	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore(WithClock(func() time.Time { return now }))

	sess := New("pia-web", "tab-1", 30*time.Minute, now)
	sess.Registration.Study = "study-a"
	sess.AddRequiredAction(identity.ActionVerifyEmail)
	require.NoError(t, store.Save(ctx, sess))

	found, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StudyID("study-a"), found.Registration.Study)
	assert.True(t, found.HasRequiredAction(identity.ActionVerifyEmail))

	// The returned session is a copy; mutations must not leak back.
	found.Registration.PendingVerificationEmail = "x@example.com"
	again, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Registration.PendingVerificationEmail)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore(WithClock(func() time.Time { return now }))

	sess := New("pia-web", "tab-1", time.Minute, now)
	require.NoError(t, store.Save(ctx, sess))

	now = now.Add(2 * time.Minute)
	_, err := store.FindByID(ctx, sess.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess := New("pia-web", "tab-1", time.Minute, time.Now())
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Delete(ctx, sess.ID))

	_, err := store.FindByID(ctx, sess.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(ctx, sess.ID))
}

func TestSessionRequiredActions(t *testing.T) {
	sess := New("pia-web", "tab-1", time.Minute, time.Now())
	sess.AddRequiredAction(identity.ActionVerifyEmail)
	sess.AddRequiredAction(identity.ActionVerifyEmail)
	assert.Len(t, sess.RequiredActions, 1)

	sess.RemoveRequiredAction(identity.ActionVerifyEmail)
	assert.False(t, sess.HasRequiredAction(identity.ActionVerifyEmail))
}
