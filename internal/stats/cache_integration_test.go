//go:build integration

package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	actionstore "conforma/internal/action/store"
	findingstore "conforma/internal/finding/store"
	"conforma/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *RedisCache
	ctx   context.Context
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = NewRedisCache(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisCacheSuite) TestMissThenHit() {
	data, err := s.cache.Get(s.ctx, "stats:findings:test")
	s.Require().NoError(err)
	s.Nil(data, "a miss must not be an error")

	s.Require().NoError(s.cache.Set(s.ctx, "stats:findings:test", []byte(`{"total":3}`), time.Minute))

	data, err = s.cache.Get(s.ctx, "stats:findings:test")
	s.Require().NoError(err)
	s.JSONEq(`{"total":3}`, string(data))
}

func (s *RedisCacheSuite) TestEntriesExpire() {
	s.Require().NoError(s.cache.Set(s.ctx, "stats:findings:ttl", []byte(`{"total":1}`), 100*time.Millisecond))

	time.Sleep(300 * time.Millisecond)

	data, err := s.cache.Get(s.ctx, "stats:findings:ttl")
	s.Require().NoError(err)
	s.Nil(data, "expired entries read as misses")
}

// TestServiceAgainstRedis runs the aggregate path with the real cache so the
// serialize-cache-deserialize loop is covered end to end.
func (s *RedisCacheSuite) TestServiceAgainstRedis() {
	findings := findingstore.NewInMemory()
	actions := actionstore.NewInMemory()
	svc := New(findings, actions, WithCache(s.cache, time.Minute))

	stats, err := svc.FindingStats(s.ctx, findingstore.Filter{Category: "safety"})
	s.Require().NoError(err)
	s.Equal(0, stats.Total)

	// Cached aggregate round-trips through redis.
	cached, err := svc.FindingStats(s.ctx, findingstore.Filter{Category: "safety"})
	s.Require().NoError(err)
	s.Equal(stats, cached)
}
