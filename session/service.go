package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/authstate/credential"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// LogoutReason tells hooks why the credential store was cleared.
type LogoutReason string

const (
	// ReasonUser is an explicit logout requested by the user.
	ReasonUser LogoutReason = "user"
	// ReasonAuthFailure is a forced logout after the API rejected the token.
	ReasonAuthFailure LogoutReason = "auth_failure"
)

// Hooks are optional observers of session transitions.
type Hooks struct {
	OnLogin      func(ctx context.Context, user *credential.UserProfile)
	OnLogout     func(ctx context.Context, reason LogoutReason)
	OnStoreError func(op string, err error)
}

// DebugInfo is a presence-only view of the stored credential.
type DebugInfo struct {
	TokenPresent  bool   `json:"token_present"`
	UserPresent   bool   `json:"user_present"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
}

// Service reads and writes the credential store on behalf of the UI.
type Service struct {
	store    *credential.Store
	logger   *zap.Logger
	hooks    Hooks
	validate *validator.Validate
}

// NewService creates a Service over store. A nil logger disables logging.
func NewService(store *credential.Store, logger *zap.Logger, hooks Hooks) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		logger:   logger.Named("session"),
		hooks:    hooks,
		validate: validator.New(),
	}
}

// Store returns the underlying credential store.
func (s *Service) Store() *credential.Store {
	return s.store
}

// Current reads the whole credential. Backend failures yield the empty credential.
func (s *Service) Current(ctx context.Context) credential.Credential {
	c, err := s.store.Load(ctx)
	if err != nil {
		s.storeError("load", err)
		return credential.Credential{}
	}
	return c
}

// IsAuthenticated is true iff both the token and the profile are present.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	return s.Current(ctx).Authenticated()
}

// Token returns the stored access token.
func (s *Service) Token(ctx context.Context) (string, bool) {
	token, ok, err := s.store.Token(ctx)
	if err != nil {
		s.storeError("token", err)
		return "", false
	}
	return token, ok
}

// User returns the stored profile.
func (s *Service) User(ctx context.Context) (*credential.UserProfile, bool) {
	u, err := s.store.User(ctx)
	if err != nil {
		s.storeError("user", err)
		return nil, false
	}
	return u, u != nil
}

// HasValidToken reports whether a non-empty access token is stored.
func (s *Service) HasValidToken(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

// HasValidUser reports whether the stored profile carries both an id and an email.
func (s *Service) HasValidUser(ctx context.Context) bool {
	u, ok := s.User(ctx)
	return ok && u.ID != "" && u.Email != ""
}

// HasRole is false when no profile is stored.
func (s *Service) HasRole(ctx context.Context, role string) bool {
	u, _ := s.User(ctx)
	return u.HasRole(role)
}

// HasAnyRole reports whether the stored profile holds at least one of roles.
func (s *Service) HasAnyRole(ctx context.Context, roles ...string) bool {
	u, _ := s.User(ctx)
	return u.HasAnyRole(roles...)
}

// Login saves token and user in a single atomic write. The token is stored exactly as
// given; a blank one is rejected.
func (s *Service) Login(ctx context.Context, token string, user *credential.UserProfile) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	if user == nil {
		return ErrInvalidUser
	}
	if err := s.validate.Struct(user); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	if err := s.store.Save(ctx, credential.Credential{AccessToken: token, User: user}); err != nil {
		s.storeError("login", err)
		return err
	}

	s.logger.Info("login stored", zap.String("user_id", user.ID))
	if s.hooks.OnLogin != nil {
		s.hooks.OnLogin(ctx, user)
	}
	return nil
}

// Logout clears the whole credential.
func (s *Service) Logout(ctx context.Context) error {
	return s.logout(ctx, ReasonUser)
}

// ClearToken removes only the access token.
func (s *Service) ClearToken(ctx context.Context) error {
	if err := s.store.ClearToken(ctx); err != nil {
		s.storeError("clear_token", err)
		return err
	}
	s.logger.Info("access token removed")
	return nil
}

// HandleAuthFailure is the reaction to an authorization failure reported by the API:
// the credential is cleared so that every context falls back to logged out.
func (s *Service) HandleAuthFailure(ctx context.Context) error {
	return s.logout(ctx, ReasonAuthFailure)
}

// Debug logs and returns which parts of the credential are present.
func (s *Service) Debug(ctx context.Context) DebugInfo {
	c := s.Current(ctx)
	info := DebugInfo{
		TokenPresent:  c.AccessToken != "",
		UserPresent:   c.User != nil,
		Authenticated: c.Authenticated(),
	}
	if c.User != nil {
		info.UserID = c.User.ID
	}
	s.logger.Info("auth debug",
		zap.Bool("token_present", info.TokenPresent),
		zap.Bool("user_present", info.UserPresent),
		zap.Bool("authenticated", info.Authenticated),
		zap.String("user_id", info.UserID),
	)
	return info
}

func (s *Service) logout(ctx context.Context, reason LogoutReason) error {
	if err := s.store.Clear(ctx); err != nil {
		s.storeError("logout", err)
		return err
	}

	s.logger.Info("logout completed", zap.String("reason", string(reason)))
	if s.hooks.OnLogout != nil {
		s.hooks.OnLogout(ctx, reason)
	}
	return nil
}

func (s *Service) storeError(op string, err error) {
	s.logger.Warn("credential store operation failed", zap.String("op", op), zap.Error(err))
	if s.hooks.OnStoreError != nil {
		s.hooks.OnStoreError(op, err)
	}
}
