package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRequestFailed = errors.New("request failed")
	ErrInvalidBody   = errors.New("invalid request body")
)

// StatusError is returned for non-2xx answers that are not authorization failures.
type StatusError struct {
	Status   int
	Messages []string
}

func (e *StatusError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, strings.Join(e.Messages, "; "))
}
