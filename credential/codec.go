package credential

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeUser serializes a profile in the LOGGED_USER wire format.
// A nil profile encodes to the empty string.
func EncodeUser(u *UserProfile) (string, error) {
	if u == nil {
		return "", nil
	}
	clone := u.Clone()
	data, err := json.Marshal(clone)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUser parses a LOGGED_USER value. Empty input and JSON null decode to a nil
// profile without error; anything that is not a JSON object yields ErrMalformedProfile.
func DecodeUser(raw string) (*UserProfile, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var u *UserProfile
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	if u == nil {
		return nil, nil
	}
	u.normalize()
	return u, nil
}
