package credential

import (
	"slices"
	"time"
)

// Storage keys shared by every execution context.
const (
	KeyAccessToken  = "ACCESS_TOKEN"
	KeyLoggedUser   = "LOGGED_USER"
	KeyRefreshToken = "REFRESH_TOKEN"
	KeySessionID    = "SESSION_ID"
)

// AllKeys lists every key removed by a full clear.
var AllKeys = []string{KeyAccessToken, KeyLoggedUser, KeyRefreshToken, KeySessionID}

// UserProfile is the logged user as persisted under LOGGED_USER.
//
// The profile is always read and written as a whole; there are no partial updates.
type UserProfile struct {
	ID       string   `json:"id" validate:"required"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Roles    []string `json:"roles"`

	// EmailVerified is nil when the backend never reported the flag.
	EmailVerified *bool `json:"isEmailVerified,omitempty"`
}

// HasRole reports whether role is one of the profile roles.
func (u *UserProfile) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// HasAnyRole reports whether at least one of roles is held by the profile.
func (u *UserProfile) HasAnyRole(roles ...string) bool {
	if u == nil {
		return false
	}
	for _, role := range roles {
		if slices.Contains(u.Roles, role) {
			return true
		}
	}
	return false
}

// Unverified is true only when the email verification flag is present and false.
func (u *UserProfile) Unverified() bool {
	return u != nil && u.EmailVerified != nil && !*u.EmailVerified
}

// Clone returns a deep copy of the profile.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = slices.Clone(u.Roles)
	if out.Roles == nil {
		out.Roles = []string{}
	}
	if u.EmailVerified != nil {
		v := *u.EmailVerified
		out.EmailVerified = &v
	}
	return &out
}

func (u *UserProfile) normalize() {
	if u.Roles == nil {
		u.Roles = []string{}
	}
}

// Verified returns a pointer suitable for UserProfile.EmailVerified.
func Verified(v bool) *bool {
	return &v
}

// Credential is one read of the four storage keys. An absent key is the zero value.
type Credential struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	User         *UserProfile
}

// Authenticated is true iff both the access token and the user profile are present.
func (c Credential) Authenticated() bool {
	return c.AccessToken != "" && c.User != nil
}

// Change is a notification that another context wrote or removed Key.
type Change struct {
	Key    string    `json:"key"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}
