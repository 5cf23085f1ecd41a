package guard

import "strings"

// Paths are the routes a guard redirects to and classifies against.
type Paths struct {
	Root         string `yaml:"root"`
	Login        string `yaml:"login"`
	Signup       string `yaml:"signup"`
	ConfirmEmail string `yaml:"confirm_email"`
	Landing      string `yaml:"landing"`
	Unauthorized string `yaml:"unauthorized"`

	PrivatePrefix string `yaml:"private_prefix"`
	PublicPrefix  string `yaml:"public_prefix"`
}

// DefaultPaths returns the stock route table.
func DefaultPaths() Paths {
	return Paths{
		Root:          "/",
		Login:         "/public/Login",
		Signup:        "/public/Signup",
		ConfirmEmail:  "/public/ConfirmEmail",
		Landing:       "/private/feed",
		Unauthorized:  "/private/unauthorized",
		PrivatePrefix: "/private",
		PublicPrefix:  "/public",
	}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&p.Root, d.Root)
	fill(&p.Login, d.Login)
	fill(&p.Signup, d.Signup)
	fill(&p.ConfirmEmail, d.ConfirmEmail)
	fill(&p.Landing, d.Landing)
	fill(&p.Unauthorized, d.Unauthorized)
	fill(&p.PrivatePrefix, d.PrivatePrefix)
	fill(&p.PublicPrefix, d.PublicPrefix)
	return p
}

// Class is the guard category of a route.
type Class int

const (
	ClassOpen Class = iota
	ClassPrivate
	ClassPublicEntry
)

func (c Class) String() string {
	switch c {
	case ClassPrivate:
		return "private"
	case ClassPublicEntry:
		return "public_entry"
	default:
		return "open"
	}
}

// Classify maps a path to its class. Login and signup pages under the public prefix are
// public entries; everything under the private prefix is private.
func (p Paths) Classify(path string) Class {
	p = p.withDefaults()
	path = normalize(path)

	switch {
	case hasSegmentPrefix(path, p.PrivatePrefix):
		return ClassPrivate
	case hasSegmentPrefix(path, p.PublicPrefix) &&
		(hasSegmentPrefix(path, p.Login) || hasSegmentPrefix(path, p.Signup)):
		return ClassPublicEntry
	default:
		return ClassOpen
	}
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return false
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
