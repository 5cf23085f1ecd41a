package state

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authstate/credential"
	"go.uber.org/zap"
)

// DefaultPollInterval is the comparison poll period.
const DefaultPollInterval = time.Second

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("session state closed")

// Trigger identifies what caused a refresh.
type Trigger string

const (
	TriggerExplicit     Trigger = "explicit"
	TriggerNotification Trigger = "notification"
	TriggerPoll         Trigger = "poll"
)

// Session is the subset of the session service the state depends on.
type Session interface {
	Current(ctx context.Context) credential.Credential
	Login(ctx context.Context, token string, user *credential.UserProfile) error
	Logout(ctx context.Context) error
}

// Notifier streams changes made by other contexts.
type Notifier interface {
	Watch(ctx context.Context) (<-chan credential.Change, error)
}

// Hooks observe refreshes.
type Hooks struct {
	OnRefresh func(trigger Trigger, snap Snapshot, changed bool, took time.Duration)
}

// Options configure a State. The zero value polls every DefaultPollInterval without
// cross-context notifications.
type Options struct {
	Notifier     Notifier
	PollInterval time.Duration
	// WatchedKeys filters notifications; defaults to ACCESS_TOKEN and LOGGED_USER.
	WatchedKeys []string
	Logger      *zap.Logger
	Hooks       Hooks
}

// Teardown stops one Watch and waits for its goroutines. It is safe to call more than
// once. Called while a listener or hook of the same watch is running, as when a listener
// stops its own watch, it cancels without waiting and the goroutines exit as soon as
// that callback returns.
type Teardown func()

// watch is one running Watch.
type watch struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// delivering counts callbacks running on this watch's goroutines.
	delivering atomic.Int32
}

func (w *watch) stop() {
	w.once.Do(func() {
		w.cancel()
		if w.delivering.Load() == 0 {
			w.wg.Wait()
		}
	})
}

// State is the reactive session mirror.
type State struct {
	session  Session
	notifier Notifier
	interval time.Duration
	watched  []string
	logger   *zap.Logger
	hooks    Hooks

	current   atomic.Pointer[Snapshot]
	refreshMu sync.Mutex

	mu        sync.Mutex
	listeners map[uint64]func(Snapshot)
	watches   map[uint64]Teardown
	nextID    uint64
	closed    bool
}

// New creates a State and performs the initial refresh.
func New(ctx context.Context, session Session, opts Options) *State {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if len(opts.WatchedKeys) == 0 {
		opts.WatchedKeys = []string{credential.KeyAccessToken, credential.KeyLoggedUser}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &State{
		session:   session,
		notifier:  opts.Notifier,
		interval:  opts.PollInterval,
		watched:   slices.Clone(opts.WatchedKeys),
		logger:    opts.Logger.Named("state"),
		hooks:     opts.Hooks,
		listeners: make(map[uint64]func(Snapshot)),
		watches:   make(map[uint64]Teardown),
	}
	s.refresh(ctx, TriggerExplicit)
	return s
}

// Snapshot returns the cached triple. The profile is a copy; editing it does not touch
// the cache.
func (s *State) Snapshot() Snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap.clone()
	}
	return Snapshot{}
}

// Current returns the cached credential without touching the store.
func (s *State) Current(context.Context) credential.Credential {
	return s.Snapshot().Credential
}

// Authenticated reports the cached authenticated flag.
func (s *State) Authenticated() bool {
	return s.Snapshot().Authenticated
}

// Refresh re-reads the store and replaces the cached triple.
func (s *State) Refresh(ctx context.Context) Snapshot {
	return s.refresh(ctx, TriggerExplicit)
}

// Login stores the credential through the session service and refreshes.
func (s *State) Login(ctx context.Context, token string, user *credential.UserProfile) error {
	if err := s.session.Login(ctx, token, user); err != nil {
		return err
	}
	s.refresh(ctx, TriggerExplicit)
	return nil
}

// Logout clears the credential through the session service and refreshes.
func (s *State) Logout(ctx context.Context) error {
	err := s.session.Logout(ctx)
	s.refresh(ctx, TriggerExplicit)
	return err
}

// OnChange registers fn to run after every refresh that changed the triple.
func (s *State) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Watch starts the notification subscription and the comparison poll. When the
// notifier is missing or fails, the state keeps polling alone.
func (s *State) Watch(ctx context.Context) (Teardown, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	wctx, cancel := context.WithCancel(ctx)
	w := &watch{cancel: cancel}

	if s.notifier != nil {
		changes, err := s.notifier.Watch(wctx)
		if err != nil {
			s.logger.Warn("cross-context notifications unavailable, polling only", zap.Error(err))
		} else {
			w.wg.Add(1)
			go s.notificationLoop(wctx, w, changes)
		}
	}

	w.wg.Add(1)
	go s.pollLoop(wctx, w)

	teardown := Teardown(func() {
		w.stop()
		s.mu.Lock()
		delete(s.watches, id)
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		teardown()
		return nil, ErrClosed
	}
	s.watches[id] = teardown
	s.mu.Unlock()

	return teardown, nil
}

// Close tears down every active watch. Further Watch calls fail with ErrClosed.
func (s *State) Close() {
	s.mu.Lock()
	s.closed = true
	teardowns := make([]Teardown, 0, len(s.watches))
	for _, t := range s.watches {
		teardowns = append(teardowns, t)
	}
	s.mu.Unlock()

	for _, t := range teardowns {
		t()
	}
}

func (s *State) pollLoop(ctx context.Context, w *watch) {
	defer w.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.pollOnce(ctx, w)
		}
	}
}

func (s *State) pollOnce(ctx context.Context, w *watch) {
	c := s.session.Current(ctx)
	if ctx.Err() != nil {
		return
	}
	cached := s.Snapshot()
	if c.AccessToken != cached.AccessToken || userKey(c.User) != cached.userKey {
		s.refreshFor(ctx, TriggerPoll, w)
	}
}

func (s *State) notificationLoop(ctx context.Context, w *watch, changes <-chan credential.Change) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				if ctx.Err() == nil {
					s.logger.Warn("change subscription ended, polling only")
				}
				return
			}
			if !slices.Contains(s.watched, change.Key) {
				continue
			}
			s.refreshFor(ctx, TriggerNotification, w)
		}
	}
}

func (s *State) refresh(ctx context.Context, trigger Trigger) Snapshot {
	return s.refreshFor(ctx, trigger, nil)
}

// refreshFor runs callbacks on behalf of w when w is not nil.
func (s *State) refreshFor(ctx context.Context, trigger Trigger, w *watch) Snapshot {
	s.refreshMu.Lock()
	start := time.Now()
	c := s.session.Current(ctx)
	if trigger != TriggerExplicit && ctx.Err() != nil {
		// A read interrupted by teardown must not overwrite the cache.
		s.refreshMu.Unlock()
		return s.Snapshot()
	}
	next := newSnapshot(c, start)
	prev := s.current.Swap(&next)
	s.refreshMu.Unlock()

	if w != nil {
		w.delivering.Add(1)
		defer w.delivering.Add(-1)
	}

	changed := prev == nil || !prev.sameAs(next)
	if s.hooks.OnRefresh != nil {
		s.hooks.OnRefresh(trigger, next.clone(), changed, time.Since(start))
	}
	if changed {
		s.logger.Debug("session state changed",
			zap.String("trigger", string(trigger)),
			zap.Bool("authenticated", next.Authenticated),
		)
		s.notify(next)
	}
	return next.clone()
}

func (s *State) notify(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap.clone())
	}
}
