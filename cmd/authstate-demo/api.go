package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/authstate/credential"
	"github.com/MrEthical07/authstate/internal/rate"
	"github.com/MrEthical07/authstate/jwt"
	"github.com/MrEthical07/authstate/middleware"
	"github.com/MrEthical07/authstate/password"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type account struct {
	hash    string
	profile credential.UserProfile
}

// api is the backend the pages call through the engine transport.
type api struct {
	logger  *zap.Logger
	hasher  *password.Hasher
	tokens  *jwt.Manager
	limiter *rate.Limiter

	mu    sync.RWMutex
	users map[string]account
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string                 `json:"token"`
	User  credential.UserProfile `json:"user"`
}

type trendingEvent struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"startsAt"`
}

func newAPI(logger *zap.Logger, limiter *rate.Limiter) (*api, error) {
	hasher, tokens, err := newHasherAndTokens()
	if err != nil {
		return nil, err
	}

	a := &api{
		logger:  logger.Named("api"),
		hasher:  hasher,
		tokens:  tokens,
		limiter: limiter,
		users:   make(map[string]account),
	}

	seed := []struct {
		password string
		profile  credential.UserProfile
	}{
		{"correct-horse", credential.UserProfile{
			ID: "user-1", Username: "alice", Name: "Alice", Email: "alice@example.com",
			Roles: []string{"member", "admin"}, EmailVerified: credential.Verified(true),
		}},
		{"battery-staple", credential.UserProfile{
			ID: "user-2", Username: "bob", Email: "bob@example.com",
			Roles: []string{"member"}, EmailVerified: credential.Verified(false),
		}},
	}
	for _, s := range seed {
		hash, err := hasher.Hash(s.password)
		if err != nil {
			return nil, err
		}
		a.users[s.profile.Username] = account{hash: hash, profile: s.profile}
	}
	return a, nil
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrors(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ip := clientIP(r)
	if err := a.limiter.Check(r.Context(), body.Username, ip); err != nil {
		a.rejectThrottled(w, err)
		return
	}

	a.mu.RLock()
	acc, found := a.users[body.Username]
	a.mu.RUnlock()

	if found {
		ok, err := a.hasher.Verify(body.Password, acc.hash)
		found = err == nil && ok
	}
	if !found {
		if err := a.limiter.Fail(r.Context(), body.Username, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			a.logger.Warn("record failed login", zap.Error(err))
		}
		writeErrors(w, http.StatusBadRequest, "Invalid username or password")
		return
	}
	if err := a.limiter.Reset(r.Context(), body.Username, ip); err != nil {
		a.logger.Warn("reset login throttle", zap.Error(err))
	}

	token, err := a.tokens.Issue(&acc.profile, uuid.NewString())
	if err != nil {
		a.logger.Error("issue token", zap.Error(err))
		writeErrors(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	a.logger.Info("issued access token", zap.String("user_id", acc.profile.ID))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: acc.profile})
}

func (a *api) verify(_ context.Context, token string) (*jwt.AccessClaims, error) {
	return a.tokens.Parse(token)
}

func (a *api) trending(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext[*jwt.AccessClaims](r.Context())
	if !ok {
		writeErrors(w, http.StatusUnauthorized, "Invalid JWT token")
		return
	}

	now := time.Now().UTC().Truncate(time.Hour)
	events := []trendingEvent{
		{ID: uuid.NewString(), Title: "Go meetup", StartsAt: now.Add(24 * time.Hour)},
		{ID: uuid.NewString(), Title: "Redis office hours", StartsAt: now.Add(48 * time.Hour)},
	}
	a.logger.Debug("trending served", zap.String("user_id", claims.UID))
	writeJSON(w, http.StatusOK, events)
}

func (a *api) rejectThrottled(w http.ResponseWriter, err error) {
	if errors.Is(err, rate.ErrRateLimited) {
		writeErrors(w, http.StatusTooManyRequests, "Too many failed attempts, try again later")
		return
	}
	a.logger.Error("login throttle unavailable", zap.Error(err))
	writeErrors(w, http.StatusServiceUnavailable, "login temporarily unavailable")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	writeJSON(w, status, map[string][]string{"erros": msgs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
