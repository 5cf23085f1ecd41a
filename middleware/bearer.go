package middleware

import (
	"context"
	"net/http"
	"strings"
)

type claimsContextKey struct{}

// VerifyFunc validates a bearer token and returns its claims.
type VerifyFunc[T any] func(ctx context.Context, token string) (T, error)

// ClaimsFromContext returns the claims injected by RequireBearer.
func ClaimsFromContext[T any](ctx context.Context) (T, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(T)
	return claims, ok
}

// RequireBearer rejects requests without a token accepted by verify. Rejections are
// answered with 401 and the invalid-token error payload.
func RequireBearer[T any](verify VerifyFunc[T]) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verify == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"erros":["Invalid JWT token"]}`))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
