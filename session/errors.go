package session

import "errors"

var (
	// ErrInvalidToken is returned by Login when the access token is empty.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrInvalidUser is returned by Login when the profile is missing or fails validation.
	ErrInvalidUser = errors.New("invalid user profile")
)
