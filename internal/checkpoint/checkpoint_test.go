package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"binlog-router/internal/model"
)

type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = value.(string)
	f.ttl[key] = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func TestManager_MaybeFlushThrottles(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, time.Minute, zap.NewNop())
	now := time.Now()

	first := model.Position{Name: "bin.000001", Pos: 100}
	require.NoError(t, m.MaybeFlush(ctx, first, now))
	got, _ := store.Load(ctx)
	assert.Equal(t, first, got)

	second := model.Position{Name: "bin.000001", Pos: 200}
	require.NoError(t, m.MaybeFlush(ctx, second, now.Add(time.Second)))
	got, _ = store.Load(ctx)
	assert.Equal(t, first, got, "save inside interval is skipped")

	require.NoError(t, m.MaybeFlush(ctx, second, now.Add(2*time.Minute)))
	got, _ = store.Load(ctx)
	assert.Equal(t, second, got)

	third := model.Position{Name: "bin.000002", Pos: 4}
	require.NoError(t, m.Flush(ctx, third))
	got, _ = m.Load(ctx)
	assert.Equal(t, third, got)
}

func TestManager_IgnoresZeroPosition(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, 0, nil)
	require.NoError(t, m.MaybeFlush(context.Background(), model.Position{}, time.Now()))
	require.NoError(t, m.Flush(context.Background(), model.Position{}))
	got, _ := store.Load(context.Background())
	assert.True(t, got.IsZero())
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	store := NewRedisStore(client, "binlog-router:checkpoint", time.Hour)

	pos, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, pos.IsZero())

	want := model.Position{Name: "mysql-bin.000003", Pos: 157}
	require.NoError(t, store.Save(ctx, want))
	assert.Equal(t, "mysql-bin.000003:157", client.data["binlog-router:checkpoint"])
	assert.Equal(t, time.Hour, client.ttl["binlog-router:checkpoint"])

	pos, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, pos)

	assert.Error(t, store.Save(ctx, model.Position{}))

	client.data["binlog-router:checkpoint"] = "garbage"
	_, err = store.Load(ctx)
	assert.Error(t, err)
}
