//go:build integration

package authsession_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/hzi-braunschweig/pia-system/internal/authsession"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
	"github.com/hzi-braunschweig/pia-system/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *authsession.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = authsession.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	sess := authsession.New("pia-web", "tab-1", time.Minute, time.Now())
	sess.Registration.Study = "study-a"
	sess.Registration.PendingVerificationEmail = "p@example.com"

	s.Require().NoError(s.store.Save(ctx, sess))

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(sess.ID, found.ID)
	s.Equal(sess.Registration, found.Registration)
	s.Equal("pia-web", found.ClientID)
}

func (s *RedisStoreSuite) TestExpiryViaTTL() {
	ctx := context.Background()
	sess := authsession.New("pia-web", "tab-1", time.Second, time.Now())
	s.Require().NoError(s.store.Save(ctx, sess))

	time.Sleep(1500 * time.Millisecond)

	_, err := s.store.FindByID(ctx, sess.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestSaveExpiredDeletes() {
	ctx := context.Background()
	sess := authsession.New("pia-web", "tab-1", time.Minute, time.Now())
	s.Require().NoError(s.store.Save(ctx, sess))

	sess.ExpiresAt = time.Now().Add(-time.Minute)
	s.Require().NoError(s.store.Save(ctx, sess))

	_, err := s.store.FindByID(ctx, sess.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestDeleteAbsentIsNoError() {
	ctx := context.Background()
	sess := authsession.New("pia-web", "tab-1", time.Minute, time.Now())
	s.Require().NoError(s.store.Delete(ctx, sess.ID))
}
