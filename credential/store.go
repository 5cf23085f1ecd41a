package credential

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is one execution context's handle on the shared credential backend.
//
// Store methods are safe for concurrent use when the backend is.
type Store struct {
	backend     Backend
	origin      string
	logger      *zap.Logger
	onMalformed func(error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the diagnostic logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOrigin overrides the random origin id identifying this context's writes.
func WithOrigin(origin string) Option {
	return func(s *Store) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// WithMalformedProfileHook registers a callback invoked whenever a stored profile fails to decode.
func WithMalformedProfileHook(fn func(error)) Option {
	return func(s *Store) {
		s.onMalformed = fn
	}
}

// NewStore creates a Store over backend with a fresh origin id.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("credential").With(zap.String("origin", s.origin))
	return s
}

// Origin returns the id tagged on every change this Store publishes.
func (s *Store) Origin() string {
	return s.origin
}

// Save writes every present field of c in a single atomic backend call.
// An empty credential is a no-op.
func (s *Store) Save(ctx context.Context, c Credential) error {
	values := make(map[string]string, len(AllKeys))
	if c.AccessToken != "" {
		values[KeyAccessToken] = c.AccessToken
	}
	if c.User != nil {
		encoded, err := EncodeUser(c.User)
		if err != nil {
			return err
		}
		values[KeyLoggedUser] = encoded
	}
	if c.RefreshToken != "" {
		values[KeyRefreshToken] = c.RefreshToken
	}
	if c.SessionID != "" {
		values[KeySessionID] = c.SessionID
	}
	if len(values) == 0 {
		return nil
	}

	if err := s.backend.SetMany(ctx, s.origin, values); err != nil {
		return err
	}
	s.logger.Debug("credential saved", zap.Int("keys", len(values)))
	return nil
}

// Token returns the stored access token.
func (s *Store) Token(ctx context.Context) (string, bool, error) {
	values, err := s.backend.GetMany(ctx, KeyAccessToken)
	if err != nil {
		return "", false, err
	}
	token := values[KeyAccessToken]
	return token, token != "", nil
}

// User returns the stored profile. A malformed profile is logged and reported as absent;
// only backend failures produce an error.
func (s *Store) User(ctx context.Context) (*UserProfile, error) {
	values, err := s.backend.GetMany(ctx, KeyLoggedUser)
	if err != nil {
		return nil, err
	}
	return s.decodeUser(values[KeyLoggedUser]), nil
}

// Load reads all four keys in one backend round-trip.
func (s *Store) Load(ctx context.Context) (Credential, error) {
	values, err := s.backend.GetMany(ctx, AllKeys...)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		SessionID:    values[KeySessionID],
		User:         s.decodeUser(values[KeyLoggedUser]),
	}, nil
}

// Clear removes the token, the profile and the auxiliary session markers as one set.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.DeleteMany(ctx, s.origin, AllKeys...); err != nil {
		return err
	}
	s.logger.Debug("credential cleared")
	return nil
}

// ClearToken removes only the access token and keeps the stored profile.
func (s *Store) ClearToken(ctx context.Context) error {
	return s.backend.DeleteMany(ctx, s.origin, KeyAccessToken)
}

// Watch streams changes published by other origins until ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	in, err := s.backend.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, ErrSubscriptionClosed
	}

	out := make(chan Change, cap(in))
	go func() {
		defer close(out)
		for change := range in {
			if change.Origin == s.origin {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) decodeUser(raw string) *UserProfile {
	u, err := DecodeUser(raw)
	if err != nil {
		if errors.Is(err, ErrMalformedProfile) {
			s.logger.Warn("stored user profile is malformed, treating as absent", zap.Error(err))
		}
		if s.onMalformed != nil {
			s.onMalformed(err)
		}
		return nil
	}
	return u
}
