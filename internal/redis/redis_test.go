package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medportal/internal/domain/artifact"
	"medportal/internal/identity"
)

// fakeKV implements the handful of commands ListCache uses.
type fakeKV struct {
	goredis.Cmdable
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *goredis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(v), nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = v
	case string:
		f.data[key] = []byte(v)
	}
	f.ttls[key] = ttl
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func TestListCacheRoundTrip(t *testing.T) {
	kv := newFakeKV()
	cache := NewListCache(kv, time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, identity.RolePatient, "wallet_abc")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := artifact.Record{ID: uuid.New(), ProducerID: "doc", RecipientID: "wallet_abc", Status: artifact.StatusCreated}
	require.NoError(t, cache.Set(ctx, identity.RolePatient, "wallet_abc", []artifact.Record{rec}))
	assert.Equal(t, time.Minute, kv.ttls["artifacts:patient:wallet_abc"])

	got, ok, err := cache.Get(ctx, identity.RolePatient, "wallet_abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestListCacheSetNilStoresEmptyList(t *testing.T) {
	kv := newFakeKV()
	cache := NewListCache(kv, 0)
	require.NoError(t, cache.Set(context.Background(), identity.RoleDoctor, "doc", nil))

	var decoded []artifact.Record
	require.NoError(t, json.Unmarshal(kv.data["artifacts:doctor:doc"], &decoded))
	assert.NotNil(t, decoded)
	assert.Equal(t, 2*time.Minute, kv.ttls["artifacts:doctor:doc"])
}

func TestListCacheInvalidate(t *testing.T) {
	kv := newFakeKV()
	cache := NewListCache(kv, time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, identity.RoleDoctor, "doc", nil))
	require.NoError(t, cache.Set(ctx, identity.RolePatient, "pat", nil))
	require.NoError(t, cache.Set(ctx, identity.RolePatient, "other", nil))

	require.NoError(t, cache.Invalidate(ctx, artifact.Record{ProducerID: "doc", RecipientID: "pat"}))

	assert.NotContains(t, kv.data, "artifacts:doctor:doc")
	assert.NotContains(t, kv.data, "artifacts:patient:pat")
	assert.Contains(t, kv.data, "artifacts:patient:other")
}

type fakeScripter struct {
	goredis.Scripter
	keys   []string
	args   []interface{}
	result []interface{}
	err    error
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *goredis.Cmd {
	f.keys = keys
	f.args = args
	return goredis.NewCmdResult(f.result, f.err)
}

func TestAllowCreate(t *testing.T) {
	s := &fakeScripter{result: []interface{}{int64(1), int64(19), int64(60)}}
	limiter := NewRateLimiter(s, DefaultRateLimitConfig())

	res, err := limiter.AllowCreate(context.Background(), "doc")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 19, res.Remaining)
	assert.Equal(t, time.Minute, res.ResetIn)
	assert.Equal(t, 20, res.Limit)
	assert.Equal(t, []string{"ratelimit:doc:artifacts"}, s.keys)
	assert.Equal(t, []interface{}{20, 60}, s.args)
}

func TestAllowCreateDenied(t *testing.T) {
	s := &fakeScripter{result: []interface{}{int64(0), int64(0), int64(12)}}
	limiter := NewRateLimiter(s, DefaultRateLimitConfig())

	res, err := limiter.AllowAuth(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 12*time.Second, res.ResetIn)
	assert.Equal(t, []string{"ratelimit:10.0.0.1:auth"}, s.keys)
}

func TestAllowCreateError(t *testing.T) {
	s := &fakeScripter{err: errors.New("connection refused")}
	limiter := NewRateLimiter(s, DefaultRateLimitConfig())

	_, err := limiter.AllowCreate(context.Background(), "doc")
	assert.ErrorContains(t, err, "rate limit check failed")
}
