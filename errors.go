package authstate

import (
	"errors"

	"github.com/MrEthical07/authstate/credential"
	"github.com/MrEthical07/authstate/session"
	"github.com/MrEthical07/authstate/state"
	"github.com/MrEthical07/authstate/transport"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrBuilderUsed   = errors.New("builder already used")

	// ErrEngineClosed is returned by Login, Logout and Watch after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// Errors surfaced by engine operations, re-exported from the packages that produce them.
var (
	ErrStoreUnavailable = credential.ErrStoreUnavailable
	ErrInvalidToken     = session.ErrInvalidToken
	ErrInvalidUser      = session.ErrInvalidUser
	ErrUnauthorized     = transport.ErrUnauthorized
	ErrStateClosed      = state.ErrClosed
)
