package persistence

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/pocketflow/internal/testutil"
)

const redisTestPrefix = "pocketflow-test"

type RedisStoreTestSuite struct {
	suite.Suite
	endpoint string
	client   *redis.Client
	store    *RedisStore
}

func TestRedisTestSuite(t *testing.T) {
	testsuite := new(RedisStoreTestSuite)
	testsuite.endpoint = testutil.GetRedisAddress(t)
	suite.Run(t, testsuite)
}

func (r *RedisStoreTestSuite) SetupSuite() {
	r.client = redis.NewClient(&redis.Options{Addr: r.endpoint})
	r.Require().NoError(r.client.Ping(context.Background()).Err(), "redis ping failed")
	r.store = NewRedisStore(r.client, redisTestPrefix)
}

func (r *RedisStoreTestSuite) TearDownSuite() {
	_ = r.client.Close()
}

func (r *RedisStoreTestSuite) SetupTest() {
	ctx := context.Background()

	// Clean up all keys with this prefix.
	iter := r.client.Scan(ctx, 0, redisTestPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		err := r.client.Del(ctx, iter.Val()).Err()
		r.NoErrorf(err, "redis DEL %q failed: %v", iter.Val(), err)
	}
	r.NoError(iter.Err(), "redis SCAN failed")
}

func (r *RedisStoreTestSuite) TestContract() {
	runStoreContract(r.T(), r.store)
}

func (r *RedisStoreTestSuite) TestKeyLayout() {
	ctx := context.Background()
	r.Require().NoError(r.store.Set(ctx, "user", map[string]any{"id": 1}))

	raw, err := r.client.Get(ctx, redisTestPrefix+":user").Result()
	r.Require().NoError(err)
	r.JSONEq(`{"id":1}`, raw)
}

func (r *RedisStoreTestSuite) TestClearLeavesOtherPrefixes() {
	ctx := context.Background()
	other := NewRedisStore(r.client, redisTestPrefix+"-other")
	defer func() { _ = other.Clear(ctx) }()

	r.Require().NoError(r.store.Set(ctx, "a", 1))
	r.Require().NoError(other.Set(ctx, "a", 2))
	r.Require().NoError(r.store.Clear(ctx))

	n, err := other.Len(ctx)
	r.Require().NoError(err)
	r.Equal(1, n)
}
