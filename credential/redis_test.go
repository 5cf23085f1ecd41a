package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisBackend(rdb, "as", nil), mr, rdb
}

func TestRedisBackendSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	backend, mr, _ := newRedisBackendTest(t)
	store := NewStore(backend)

	require.NoError(t, store.Save(ctx, Credential{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		SessionID:    "sid-1",
		User:         testUser(),
	}))

	got, err := mr.Get("as:ACCESS_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, cred.Authenticated())
	assert.Equal(t, "sid-1", cred.SessionID)

	require.NoError(t, store.Clear(ctx))
	for _, k := range AllKeys {
		assert.False(t, mr.Exists("as:"+k), k)
	}
}

func TestRedisBackendMalformedProfile(t *testing.T) {
	ctx := context.Background()
	backend, mr, _ := newRedisBackendTest(t)
	store := NewStore(backend)

	require.NoError(t, mr.Set("as:LOGGED_USER", "{broken"))
	u, err := store.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestRedisBackendUnavailable(t *testing.T) {
	ctx := context.Background()
	backend, mr, _ := newRedisBackendTest(t)
	store := NewStore(backend)
	mr.Close()

	_, err := store.Load(ctx)
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)

	err = store.Save(ctx, Credential{AccessToken: "tok"})
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)
}

func TestRedisBackendWatchAcrossContexts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, _, _ := newRedisBackendTest(t)
	tabA := NewStore(backend)
	tabB := NewStore(backend)

	changes, err := tabA.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, tabB.Save(ctx, Credential{AccessToken: "tok-b"}))

	select {
	case c := <-changes:
		assert.Equal(t, KeyAccessToken, c.Key)
		assert.Equal(t, tabB.Origin(), c.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("expected pub/sub change from other context")
	}
}
