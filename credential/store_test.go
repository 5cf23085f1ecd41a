package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *UserProfile {
	return &UserProfile{
		ID:            "u-1",
		Username:      "ana",
		Name:          "Ana",
		Email:         "ana@example.com",
		Roles:         []string{"user"},
		EmailVerified: Verified(true),
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryHub())

	require.NoError(t, store.Save(ctx, Credential{AccessToken: "tok-1", User: testUser()}))

	token, ok, err := store.Token(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)

	u, err := store.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, []string{"user"}, u.Roles)

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, cred.Authenticated())
	assert.Empty(t, cred.RefreshToken)
}

func TestStoreSaveIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryHub())
	c := Credential{AccessToken: "tok-1", User: testUser()}

	require.NoError(t, store.Save(ctx, c))
	first, err := store.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, c))
	second, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStoreUserMalformedFailsSoft(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	var reported int
	store := NewStore(hub, WithMalformedProfileHook(func(error) { reported++ }))

	hub.Put(KeyAccessToken, "tok-1")
	hub.Put(KeyLoggedUser, "{not-json")

	u, err := store.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred.User)
	assert.False(t, cred.Authenticated())
	assert.Equal(t, 2, reported)
}

func TestStoreClearRemovesAllKeys(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	store := NewStore(hub)

	require.NoError(t, store.Save(ctx, Credential{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		SessionID:    "sid-1",
		User:         testUser(),
	}))
	require.NoError(t, store.Clear(ctx))

	values, err := hub.GetMany(ctx, AllKeys...)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestStoreClearTokenKeepsUser(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryHub())
	require.NoError(t, store.Save(ctx, Credential{AccessToken: "tok-1", User: testUser()}))

	require.NoError(t, store.ClearToken(ctx))

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cred.AccessToken)
	assert.NotNil(t, cred.User)
	assert.False(t, cred.Authenticated())
}

func TestStoreWatchSkipsOwnOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewMemoryHub()
	tabA := NewStore(hub)
	tabB := NewStore(hub)

	changes, err := tabA.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, tabA.Save(ctx, Credential{AccessToken: "own"}))
	require.NoError(t, tabB.Save(ctx, Credential{AccessToken: "other"}))

	select {
	case c := <-changes:
		assert.Equal(t, KeyAccessToken, c.Key)
		assert.Equal(t, tabB.Origin(), c.Origin)
	case <-time.After(time.Second):
		t.Fatal("expected change from other origin")
	}

	select {
	case c := <-changes:
		t.Fatalf("unexpected extra change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStoreWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewMemoryHub()
	store := NewStore(hub)

	changes, err := store.Watch(ctx)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}
