package credential

import "errors"

var (
	// ErrStoreUnavailable wraps every backend failure surfaced by the Store.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrMalformedProfile is returned by DecodeUser when the stored profile is not a JSON object.
	ErrMalformedProfile = errors.New("malformed user profile")
	// ErrSubscriptionClosed is returned when a backend cannot open a change subscription.
	ErrSubscriptionClosed = errors.New("change subscription closed")
)
