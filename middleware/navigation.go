package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authstate/guard"
)

// Navigation evaluates g.Check for the request path.
func Navigation(g *guard.Guard) func(http.Handler) http.Handler {
	return decide(g, func(ctx context.Context, r *http.Request) guard.Decision {
		return g.Check(ctx, r.URL.Path)
	})
}

// RequirePrivate admits verified, authenticated sessions only.
func RequirePrivate(g *guard.Guard) func(http.Handler) http.Handler {
	return decide(g, func(ctx context.Context, _ *http.Request) guard.Decision {
		return g.Private(ctx)
	})
}

// RequireRoles admits sessions holding at least one of roles.
func RequireRoles(g *guard.Guard, roles ...string) func(http.Handler) http.Handler {
	return decide(g, func(ctx context.Context, _ *http.Request) guard.Decision {
		return g.Role(ctx, roles...)
	})
}

func decide(g *guard.Guard, check func(context.Context, *http.Request) guard.Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}

			d := check(r.Context(), r)
			if !d.Allowed() {
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
