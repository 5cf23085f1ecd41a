package state

import (
	"time"

	"github.com/MrEthical07/authstate/credential"
)

const anonymousDisplayName = "User"

// Snapshot is one consistent read of the credential store.
type Snapshot struct {
	credential.Credential
	Authenticated bool
	RefreshedAt   time.Time

	userKey string
}

func newSnapshot(c credential.Credential, at time.Time) Snapshot {
	return Snapshot{
		Credential:    c,
		Authenticated: c.Authenticated(),
		RefreshedAt:   at,
		userKey:       userKey(c.User),
	}
}

func (s Snapshot) clone() Snapshot {
	s.User = s.User.Clone()
	return s
}

// DisplayName prefers the profile name, then the username.
func (s Snapshot) DisplayName() string {
	if s.User != nil {
		if s.User.Name != "" {
			return s.User.Name
		}
		if s.User.Username != "" {
			return s.User.Username
		}
	}
	return anonymousDisplayName
}

// Roles never returns nil.
func (s Snapshot) Roles() []string {
	if s.User == nil || s.User.Roles == nil {
		return []string{}
	}
	return s.User.Roles
}

func (s Snapshot) sameAs(o Snapshot) bool {
	return s.AccessToken == o.AccessToken &&
		s.RefreshToken == o.RefreshToken &&
		s.SessionID == o.SessionID &&
		s.userKey == o.userKey
}

func userKey(u *credential.UserProfile) string {
	key, err := credential.EncodeUser(u)
	if err != nil {
		return ""
	}
	return key
}
