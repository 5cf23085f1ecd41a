package guard

import (
	"context"
	"slices"
	"strings"

	"github.com/MrEthical07/authstate/credential"
	"go.uber.org/zap"
)

// Source supplies the credential a guard decides on.
type Source interface {
	Current(ctx context.Context) credential.Credential
}

// Reason explains a redirect.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonRoot            Reason = "root"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonUnverified      Reason = "unverified"
	ReasonAuthenticated   Reason = "authenticated"
	ReasonForbidden       Reason = "forbidden"
)

// Decision is the outcome of a guard. The zero value allows navigation.
type Decision struct {
	Redirect string
	Reason   Reason
}

// Allow lets the navigation proceed.
var Allow = Decision{}

// Allowed reports whether the navigation may proceed.
func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// Status is the session status as seen by guards.
type Status int

const (
	Anonymous Status = iota
	AuthenticatedUnverified
	AuthenticatedVerified
)

func (s Status) String() string {
	switch s {
	case AuthenticatedUnverified:
		return "authenticated_unverified"
	case AuthenticatedVerified:
		return "authenticated_verified"
	default:
		return "anonymous"
	}
}

// StatusOf derives the status of c. A profile without a verification flag counts as
// verified.
func StatusOf(c credential.Credential) Status {
	switch {
	case !c.Authenticated():
		return Anonymous
	case c.User.Unverified():
		return AuthenticatedUnverified
	default:
		return AuthenticatedVerified
	}
}

// RoleRule restricts every private route under Prefix to holders of any of Roles.
type RoleRule struct {
	Prefix string   `yaml:"prefix"`
	Roles  []string `yaml:"roles"`
}

// Options configure a Guard.
type Options struct {
	Paths      Paths
	Rules      []RoleRule
	Logger     *zap.Logger
	OnDecision func(route string, d Decision)
}

// Guard evaluates route access.
type Guard struct {
	src        Source
	paths      Paths
	rules      []RoleRule
	logger     *zap.Logger
	onDecision func(route string, d Decision)
}

// New creates a guard reading from src.
func New(src Source, opts Options) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rules := slices.Clone(opts.Rules)
	// Longest prefix first so the most specific rule wins.
	slices.SortStableFunc(rules, func(a, b RoleRule) int {
		return len(b.Prefix) - len(a.Prefix)
	})

	return &Guard{
		src:        src,
		paths:      opts.Paths.withDefaults(),
		rules:      rules,
		logger:     logger.Named("guard"),
		onDecision: opts.OnDecision,
	}
}

// Paths returns the resolved route table.
func (g *Guard) Paths() Paths {
	return g.paths
}

// Private allows verified, authenticated users.
func (g *Guard) Private(ctx context.Context) Decision {
	return g.record("private", g.private(g.src.Current(ctx)))
}

// Public allows anonymous users only; authenticated users land on the private feed.
func (g *Guard) Public(ctx context.Context) Decision {
	return g.record("public", g.public(g.src.Current(ctx)))
}

// Role allows authenticated users holding at least one of roles.
func (g *Guard) Role(ctx context.Context, roles ...string) Decision {
	return g.record("role", g.role(g.src.Current(ctx), roles))
}

// Check evaluates the guard for a navigation to path.
func (g *Guard) Check(ctx context.Context, path string) Decision {
	path = normalize(path)
	if path == g.paths.Root {
		return g.record(path, Decision{Redirect: g.paths.Login, Reason: ReasonRoot})
	}

	switch g.paths.Classify(path) {
	case ClassPrivate:
		c := g.src.Current(ctx)
		d := g.private(c)
		if d.Allowed() {
			if roles, ok := g.rolesFor(path); ok {
				d = g.role(c, roles)
			}
		}
		return g.record(path, d)
	case ClassPublicEntry:
		return g.record(path, g.public(g.src.Current(ctx)))
	default:
		return g.record(path, Allow)
	}
}

// Enforce runs Check and sends a redirect to nav.
func (g *Guard) Enforce(ctx context.Context, path string, nav Navigator) Decision {
	d := g.Check(ctx, path)
	if !d.Allowed() && nav != nil {
		nav.Navigate(ctx, d.Redirect)
	}
	return d
}

func (g *Guard) private(c credential.Credential) Decision {
	switch StatusOf(c) {
	case Anonymous:
		return Decision{Redirect: g.paths.Login, Reason: ReasonUnauthenticated}
	case AuthenticatedUnverified:
		return Decision{Redirect: g.paths.ConfirmEmail, Reason: ReasonUnverified}
	default:
		return Allow
	}
}

func (g *Guard) public(c credential.Credential) Decision {
	if c.Authenticated() {
		return Decision{Redirect: g.paths.Landing, Reason: ReasonAuthenticated}
	}
	return Allow
}

func (g *Guard) role(c credential.Credential, roles []string) Decision {
	if !c.Authenticated() {
		return Decision{Redirect: g.paths.Login, Reason: ReasonUnauthenticated}
	}
	if !c.User.HasAnyRole(roles...) {
		return Decision{Redirect: g.paths.Unauthorized, Reason: ReasonForbidden}
	}
	return Allow
}

func (g *Guard) rolesFor(path string) ([]string, bool) {
	if path == g.paths.Unauthorized {
		return nil, false
	}
	for _, r := range g.rules {
		if hasSegmentPrefix(path, strings.TrimRight(r.Prefix, "/")) {
			return r.Roles, true
		}
	}
	return nil, false
}

func (g *Guard) record(route string, d Decision) Decision {
	if d.Allowed() {
		g.logger.Debug("route allowed", zap.String("route", route))
	} else {
		g.logger.Debug("route redirected",
			zap.String("route", route),
			zap.String("redirect", d.Redirect),
			zap.String("reason", string(d.Reason)),
		)
	}
	if g.onDecision != nil {
		g.onDecision(route, d)
	}
	return d
}
