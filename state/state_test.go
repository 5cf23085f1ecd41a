package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authstate/credential"
	"github.com/MrEthical07/authstate/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type tab struct {
	store   *credential.Store
	session *session.Service
}

func newTab(t *testing.T, hub *credential.MemoryHub) tab {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := credential.NewStore(hub, credential.WithLogger(logger))
	return tab{store: store, session: session.NewService(store, logger, session.Hooks{})}
}

func profile(id string) *credential.UserProfile {
	return &credential.UserProfile{
		ID:            id,
		Username:      "ana",
		Name:          "Ana",
		Email:         "ana@example.com",
		Roles:         []string{"user"},
		EmailVerified: credential.Verified(true),
	}
}

func putUser(t *testing.T, hub *credential.MemoryHub, u *credential.UserProfile) {
	t.Helper()
	raw, err := credential.EncodeUser(u)
	require.NoError(t, err)
	hub.Put(credential.KeyLoggedUser, raw)
}

func TestNewReflectsExistingStore(t *testing.T) {
	hub := credential.NewMemoryHub()
	hub.Put(credential.KeyAccessToken, "tok-1")
	putUser(t, hub, profile("u-1"))

	tb := newTab(t, hub)
	st := New(context.Background(), tb.session, Options{Logger: zaptest.NewLogger(t)})

	snap := st.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.Equal(t, "tok-1", snap.AccessToken)
	assert.Equal(t, "u-1", snap.User.ID)
	assert.Equal(t, "Ana", snap.DisplayName())
}

func TestLoginLogoutRefreshImmediately(t *testing.T) {
	ctx := context.Background()
	tb := newTab(t, credential.NewMemoryHub())
	st := New(ctx, tb.session, Options{PollInterval: time.Hour, Logger: zaptest.NewLogger(t)})
	require.False(t, st.Authenticated())

	require.NoError(t, st.Login(ctx, "tok-1", profile("u-1")))
	assert.True(t, st.Authenticated())
	assert.Equal(t, "tok-1", st.Current(ctx).AccessToken)

	require.NoError(t, st.Logout(ctx))
	snap := st.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Empty(t, snap.AccessToken)
	assert.Nil(t, snap.User)
	assert.Equal(t, "User", snap.DisplayName())
	assert.Equal(t, []string{}, snap.Roles())
}

func TestRejectedLoginKeepsState(t *testing.T) {
	ctx := context.Background()
	tb := newTab(t, credential.NewMemoryHub())
	st := New(ctx, tb.session, Options{PollInterval: time.Hour})

	require.Error(t, st.Login(ctx, "", profile("u-1")))
	assert.False(t, st.Authenticated())
}

func TestPollPicksUpBypassWrites(t *testing.T) {
	hub := credential.NewMemoryHub()
	tb := newTab(t, hub)
	st := New(context.Background(), tb.session, Options{PollInterval: 10 * time.Millisecond})

	teardown, err := st.Watch(context.Background())
	require.NoError(t, err)
	defer teardown()

	hub.Put(credential.KeyAccessToken, "tok-bypass")
	putUser(t, hub, profile("u-9"))

	require.Eventually(t, st.Authenticated, time.Second, 5*time.Millisecond)
	assert.Equal(t, "tok-bypass", st.Snapshot().AccessToken)

	hub.Remove(credential.KeyAccessToken)
	require.Eventually(t, func() bool { return !st.Authenticated() }, time.Second, 5*time.Millisecond)
}

func TestNotificationFromOtherContext(t *testing.T) {
	ctx := context.Background()
	hub := credential.NewMemoryHub()
	tabA := newTab(t, hub)
	tabB := newTab(t, hub)

	var notified atomic.Int32
	st := New(ctx, tabA.session, Options{
		Notifier:     tabA.store,
		PollInterval: time.Hour,
		Hooks: Hooks{OnRefresh: func(trigger Trigger, _ Snapshot, _ bool, _ time.Duration) {
			if trigger == TriggerNotification {
				notified.Add(1)
			}
		}},
	})

	teardown, err := st.Watch(ctx)
	require.NoError(t, err)
	defer teardown()

	require.NoError(t, tabB.session.Login(ctx, "tok-b", profile("u-2")))
	require.Eventually(t, st.Authenticated, time.Second, 5*time.Millisecond)
	assert.Equal(t, "u-2", st.Snapshot().User.ID)
	assert.Positive(t, notified.Load())

	require.NoError(t, tabB.session.Logout(ctx))
	require.Eventually(t, func() bool { return !st.Authenticated() }, time.Second, 5*time.Millisecond)
}

func TestNotificationsForUnwatchedKeysAreIgnored(t *testing.T) {
	ctx := context.Background()
	hub := credential.NewMemoryHub()
	tabA := newTab(t, hub)
	tabB := newTab(t, hub)

	var notified atomic.Int32
	st := New(ctx, tabA.session, Options{
		Notifier:     tabA.store,
		PollInterval: time.Hour,
		Hooks: Hooks{OnRefresh: func(trigger Trigger, _ Snapshot, _ bool, _ time.Duration) {
			if trigger == TriggerNotification {
				notified.Add(1)
			}
		}},
	})
	teardown, err := st.Watch(ctx)
	require.NoError(t, err)
	defer teardown()

	require.NoError(t, tabB.store.Save(ctx, credential.Credential{RefreshToken: "r-1", SessionID: "s-1"}))
	require.NoError(t, tabB.store.Save(ctx, credential.Credential{AccessToken: "tok-b"}))

	require.Eventually(t, func() bool { return notified.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, notified.Load())
}

func TestTeardownStopsRefreshes(t *testing.T) {
	ctx := context.Background()
	hub := credential.NewMemoryHub()
	tabA := newTab(t, hub)
	tabB := newTab(t, hub)
	st := New(ctx, tabA.session, Options{Notifier: tabA.store, PollInterval: 5 * time.Millisecond})

	teardown, err := st.Watch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers())

	teardown()
	teardown()

	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tabB.session.Login(ctx, "tok-b", profile("u-2")))
	hub.Put(credential.KeyAccessToken, "tok-c")
	time.Sleep(50 * time.Millisecond)

	assert.False(t, st.Authenticated())
	assert.Empty(t, st.Snapshot().AccessToken)
}

func TestListenerCanStopItsOwnWatch(t *testing.T) {
	ctx := context.Background()
	hub := credential.NewMemoryHub()
	tabA := newTab(t, hub)
	tabB := newTab(t, hub)
	st := New(ctx, tabA.session, Options{Notifier: tabA.store, PollInterval: 5 * time.Millisecond})

	teardown, err := st.Watch(ctx)
	require.NoError(t, err)

	stopped := make(chan struct{})
	var once sync.Once
	st.OnChange(func(s Snapshot) {
		if !s.Authenticated {
			teardown()
			once.Do(func() { close(stopped) })
		}
	})

	require.NoError(t, tabB.session.Login(ctx, "tok-b", profile("u-2")))
	require.Eventually(t, st.Authenticated, time.Second, 5*time.Millisecond)
	require.NoError(t, tabB.session.Logout(ctx))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown from a listener did not return")
	}
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tabB.session.Login(ctx, "tok-c", profile("u-2")))
	time.Sleep(30 * time.Millisecond)
	assert.False(t, st.Authenticated())

	teardown()
	st.Close()
}

func TestSnapshotProfileIsACopy(t *testing.T) {
	ctx := context.Background()
	tb := newTab(t, credential.NewMemoryHub())
	st := New(ctx, tb.session, Options{PollInterval: time.Hour})
	require.NoError(t, st.Login(ctx, "tok-1", profile("u-1")))

	var fromListener Snapshot
	st.OnChange(func(s Snapshot) { fromListener = s })
	require.NoError(t, st.Login(ctx, "tok-2", profile("u-1")))

	snap := st.Snapshot()
	snap.User.Roles[0] = "admin"
	snap.User.Name = "Mallory"
	fromListener.User.Roles = append(fromListener.User.Roles, "root")

	again := st.Snapshot()
	assert.Equal(t, []string{"user"}, again.Roles())
	assert.Equal(t, "Ana", again.DisplayName())
	assert.Equal(t, []string{"user"}, st.Current(ctx).User.Roles)
}

func TestWatchFallsBackToPolling(t *testing.T) {
	hub := credential.NewMemoryHub()
	tb := newTab(t, hub)
	st := New(context.Background(), tb.session, Options{
		Notifier:     failingNotifier{},
		PollInterval: 10 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})

	teardown, err := st.Watch(context.Background())
	require.NoError(t, err)
	defer teardown()

	hub.Put(credential.KeyAccessToken, "tok-1")
	putUser(t, hub, profile("u-1"))
	require.Eventually(t, st.Authenticated, time.Second, 5*time.Millisecond)
}

func TestCloseTearsDownAllWatches(t *testing.T) {
	hub := credential.NewMemoryHub()
	tb := newTab(t, hub)
	st := New(context.Background(), tb.session, Options{Notifier: tb.store, PollInterval: time.Hour})

	for range 3 {
		_, err := st.Watch(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 3, hub.Subscribers())

	st.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	_, err := st.Watch(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestOnChangeListeners(t *testing.T) {
	ctx := context.Background()
	tb := newTab(t, credential.NewMemoryHub())
	st := New(ctx, tb.session, Options{PollInterval: time.Hour})

	var seen []bool
	unsubscribe := st.OnChange(func(s Snapshot) { seen = append(seen, s.Authenticated) })

	require.NoError(t, st.Login(ctx, "tok-1", profile("u-1")))
	st.Refresh(ctx)
	require.NoError(t, st.Logout(ctx))
	unsubscribe()
	require.NoError(t, st.Login(ctx, "tok-2", profile("u-1")))

	assert.Equal(t, []bool{true, false}, seen)
}

func TestSnapshotIsAlwaysConsistent(t *testing.T) {
	ctx := context.Background()
	hub := credential.NewMemoryHub()
	tb := newTab(t, hub)
	st := New(ctx, tb.session, Options{PollInterval: time.Millisecond})

	teardown, err := st.Watch(ctx)
	require.NoError(t, err)
	defer teardown()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_ = tb.session.Login(ctx, "tok", profile("u-1"))
			} else {
				_ = tb.session.Logout(ctx)
			}
		}
	}()

	for range 500 {
		snap := st.Refresh(ctx)
		assert.Equal(t, snap.AccessToken != "" && snap.User != nil, snap.Authenticated)
		cached := st.Snapshot()
		assert.Equal(t, cached.AccessToken != "" && cached.User != nil, cached.Authenticated)
	}
	close(stop)
	wg.Wait()
}

type failingNotifier struct{}

func (failingNotifier) Watch(context.Context) (<-chan credential.Change, error) {
	return nil, credential.ErrSubscriptionClosed
}
