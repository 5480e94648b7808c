package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
)

// fakeCommands is an in-memory stand-in for the go-redis commands used here.
type fakeCommands struct {
	data    map[string]string
	sets    map[string]map[string]struct{}
	ttls    map[string]time.Duration
	expires []string
	failOn  string
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		data: map[string]string{},
		sets: map[string]map[string]struct{}{},
		ttls: map[string]time.Duration{},
	}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = stringify(value)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = stringify(value)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	var n int64
	fmt.Sscan(f.data[key], &n)
	n++
	f.data[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommands) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires = append(f.expires, key)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if f.failOn == "expire" {
		return redis.NewBoolResult(false, errors.New("connection reset"))
	}
	if _, ok := f.ttls[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.expires = append(f.expires, key)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
		delete(f.sets, key)
		delete(f.ttls, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCommands) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	for _, m := range members {
		f.sets[key][fmt.Sprint(m)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeCommands) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeCommands) SRem(_ context.Context, key string, members ...any) *redis.IntCmd {
	for _, m := range members {
		delete(f.sets[key], fmt.Sprint(m))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func stringify(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func TestFixedWindowAllowSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := newClient(fake, nil)

	for i, wantAllowed := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "login:203.0.113.9", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, wantAllowed, allowed, "hit %d", i+1)
		assert.EqualValues(t, i+1, count)
	}
	assert.Equal(t, []string{"tc:rate_limit:login:203.0.113.9"}, fake.expires)
	assert.Equal(t, time.Minute, fake.ttls["tc:rate_limit:login:203.0.113.9"])
}

func TestIncrWithTTLReportsExpireFailure(t *testing.T) {
	fake := newFakeCommands()
	fake.failOn = "expire"
	client := newClient(fake, nil)

	count, err := client.IncrWithTTL(context.Background(), "tc:counter:x", time.Second)
	require.Error(t, err)
	assert.EqualValues(t, 1, count)
}

func TestJSONCache(t *testing.T) {
	ctx := context.Background()
	client := newClient(newFakeCommands(), nil)

	type entry struct {
		Number string  `json:"number"`
		Score  float64 `json:"score"`
	}
	key := client.CacheKey("certificate", "TC-2026-000001")

	var miss entry
	found, err := client.GetJSON(ctx, key, &miss)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetJSON(ctx, key, entry{Number: "TC-2026-000001", Score: 9.1}, time.Minute))
	var hit entry
	found, err = client.GetJSON(ctx, key, &hit)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry{Number: "TC-2026-000001", Score: 9.1}, hit)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestGetJSONRejectsCorruptValue(t *testing.T) {
	fake := newFakeCommands()
	fake.data["tc:cache:x:y"] = "{not json"
	client := newClient(fake, nil)

	var dest map[string]any
	_, err := client.GetJSON(context.Background(), "tc:cache:x:y", &dest)
	assert.Error(t, err)
}

func TestSetHelpers(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := newClient(fake, nil)
	key := client.UserSessionsKey("u-1")

	require.NoError(t, client.AddToSet(ctx, key, time.Hour, "laptop", "phone"))
	assert.Equal(t, time.Hour, fake.ttls[key])
	require.NoError(t, client.RemoveFromSet(ctx, key, "laptop"))

	members, err := client.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone"}, members)

	members, err = client.SetMembers(ctx, client.UserSessionsKey("nobody"))
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, client.AddToSet(ctx, key, time.Hour))
	require.NoError(t, client.RemoveFromSet(ctx, key))
}

func TestZeroClientReportsNotInitialized(t *testing.T) {
	ctx := context.Background()
	var client Client

	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	assert.ErrorIs(t, client.Set(ctx, "k", "v", 0), errNotInitialized)
	_, err := client.SetNX(ctx, "k", "v", 0)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.ErrorIs(t, client.Del(ctx, "k"), errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	base := config.RedisConfig{
		DB:           3,
		PoolSize:     20,
		MinIdleConns: 4,
		DialTimeout:  time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	t.Run("url wins over address", func(t *testing.T) {
		cfg := base
		cfg.URL = "redis://:secret@cache.internal:6380/1"
		cfg.Address = "ignored:6379"
		opts, err := optionsFromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 1, opts.DB)
		assert.Equal(t, 20, opts.PoolSize)
		assert.Equal(t, 2*time.Second, opts.ReadTimeout)
	})

	t.Run("address fallback", func(t *testing.T) {
		cfg := base
		cfg.Address = "localhost:6379"
		opts, err := optionsFromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, 3, opts.DB)
		assert.Equal(t, 4, opts.MinIdleConns)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := optionsFromConfig(base)
		assert.Error(t, err)
	})

	t.Run("bad url", func(t *testing.T) {
		cfg := base
		cfg.URL = "http://nope"
		_, err := optionsFromConfig(cfg)
		assert.Error(t, err)
	})
}
