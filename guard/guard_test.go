package guard

import (
	"context"
	"testing"

	"github.com/MrEthical07/authstate/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticSource credential.Credential

func (s staticSource) Current(context.Context) credential.Credential {
	return credential.Credential(s)
}

func signedIn(verified *bool, roles ...string) staticSource {
	return staticSource{
		AccessToken: "tok",
		User: &credential.UserProfile{
			ID:            "u-1",
			Roles:         roles,
			EmailVerified: verified,
		},
	}
}

func TestPrivate(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		src  staticSource
		want Decision
	}{
		{"anonymous", staticSource{}, Decision{Redirect: "/public/Login", Reason: ReasonUnauthenticated}},
		{"token without user", staticSource{AccessToken: "tok"}, Decision{Redirect: "/public/Login", Reason: ReasonUnauthenticated}},
		{"user without token", staticSource{User: &credential.UserProfile{ID: "u-1"}}, Decision{Redirect: "/public/Login", Reason: ReasonUnauthenticated}},
		{"unverified", signedIn(credential.Verified(false)), Decision{Redirect: "/public/ConfirmEmail", Reason: ReasonUnverified}},
		{"verified", signedIn(credential.Verified(true)), Allow},
		{"flag missing", signedIn(nil), Allow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := New(tc.src, Options{Logger: zaptest.NewLogger(t)})
			assert.Equal(t, tc.want, g.Private(ctx))
		})
	}
}

func TestPublic(t *testing.T) {
	ctx := context.Background()

	assert.True(t, New(staticSource{}, Options{}).Public(ctx).Allowed())

	d := New(signedIn(credential.Verified(false)), Options{}).Public(ctx)
	assert.Equal(t, Decision{Redirect: "/private/feed", Reason: ReasonAuthenticated}, d)
}

func TestRole(t *testing.T) {
	ctx := context.Background()

	d := New(staticSource{}, Options{}).Role(ctx, "admin")
	assert.Equal(t, "/public/Login", d.Redirect)

	d = New(signedIn(nil, "user"), Options{}).Role(ctx, "admin", "moderator")
	assert.Equal(t, Decision{Redirect: "/private/unauthorized", Reason: ReasonForbidden}, d)

	d = New(signedIn(nil, "user", "moderator"), Options{}).Role(ctx, "admin", "moderator")
	assert.True(t, d.Allowed())

	d = New(signedIn(nil), Options{}).Role(ctx)
	assert.False(t, d.Allowed())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, Anonymous, StatusOf(credential.Credential{}))
	assert.Equal(t, AuthenticatedUnverified, StatusOf(credential.Credential(signedIn(credential.Verified(false)))))
	assert.Equal(t, AuthenticatedVerified, StatusOf(credential.Credential(signedIn(credential.Verified(true)))))
	assert.Equal(t, AuthenticatedVerified, StatusOf(credential.Credential(signedIn(nil))))
	assert.Equal(t, "authenticated_unverified", AuthenticatedUnverified.String())
}

func TestClassify(t *testing.T) {
	p := DefaultPaths()
	cases := map[string]Class{
		"/private/feed":         ClassPrivate,
		"/private":              ClassPrivate,
		"/private/admin/users/": ClassPrivate,
		"/privateer":            ClassOpen,
		"/public/Login":         ClassPublicEntry,
		"/public/Signup?next=1": ClassPublicEntry,
		"/public/ConfirmEmail":  ClassOpen,
		"/public/about":         ClassOpen,
		"/":                     ClassOpen,
		"":                      ClassOpen,
	}
	for path, want := range cases {
		assert.Equal(t, want, p.Classify(path), path)
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	rules := []RoleRule{
		{Prefix: "/private/admin", Roles: []string{"admin"}},
		{Prefix: "/private/admin/reports/", Roles: []string{"admin", "auditor"}},
	}

	var routes []string
	opts := Options{
		Rules:      rules,
		Logger:     zaptest.NewLogger(t),
		OnDecision: func(route string, _ Decision) { routes = append(routes, route) },
	}

	anon := New(staticSource{}, opts)
	assert.Equal(t, Decision{Redirect: "/public/Login", Reason: ReasonRoot}, anon.Check(ctx, "/"))
	assert.Equal(t, "/public/Login", anon.Check(ctx, "/private/feed").Redirect)
	assert.True(t, anon.Check(ctx, "/public/Login").Allowed())
	assert.True(t, anon.Check(ctx, "/public/ConfirmEmail").Allowed())

	user := New(signedIn(nil, "user"), opts)
	assert.True(t, user.Check(ctx, "/private/feed").Allowed())
	assert.Equal(t, "/private/feed", user.Check(ctx, "/public/Signup").Redirect)
	assert.Equal(t, "/private/unauthorized", user.Check(ctx, "/private/admin/users").Redirect)
	assert.True(t, user.Check(ctx, "/private/unauthorized").Allowed())

	auditor := New(signedIn(nil, "auditor"), opts)
	assert.True(t, auditor.Check(ctx, "/private/admin/reports/q3").Allowed())
	assert.False(t, auditor.Check(ctx, "/private/admin").Allowed())

	unverified := New(signedIn(credential.Verified(false), "admin"), opts)
	assert.Equal(t, "/public/ConfirmEmail", unverified.Check(ctx, "/private/admin").Redirect)

	require.NotEmpty(t, routes)
	assert.Equal(t, "/", routes[0])
}

func TestCustomPaths(t *testing.T) {
	g := New(staticSource{}, Options{Paths: Paths{Login: "/signin", PrivatePrefix: "/app"}})
	assert.Equal(t, "/signin", g.Paths().Login)
	assert.Equal(t, "/public/ConfirmEmail", g.Paths().ConfirmEmail)
	assert.Equal(t, "/signin", g.Check(context.Background(), "/app/home").Redirect)
	assert.True(t, g.Check(context.Background(), "/private/feed").Allowed())
}

func TestEnforceNavigates(t *testing.T) {
	ctx := context.Background()
	var navigated []string
	nav := NavigatorFunc(func(_ context.Context, path string) { navigated = append(navigated, path) })

	g := New(staticSource{}, Options{})
	g.Enforce(ctx, "/private/feed", nav)
	g.Enforce(ctx, "/public/Login", nav)

	assert.Equal(t, []string{"/public/Login"}, navigated)
}
