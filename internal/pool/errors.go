package pool

import "errors"

// Validation and lifecycle errors returned by pool operations. Handlers map
// these onto HTTP statuses; nothing here is ever persisted as account state.
var (
	ErrInvalidPhone       = errors.New("phone must be an international number like +15551234567")
	ErrDuplicateAccount   = errors.New("account already registered")
	ErrMissingCredentials = errors.New("api_id and api_hash are required")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountBanned      = errors.New("account is banned")
	ErrAlreadyAuthorized  = errors.New("session already authorized")
	ErrNoPendingAuth      = errors.New("no pending registration for this account")
	ErrNotConnected       = errors.New("account is not connected")
	ErrPoolClosed         = errors.New("account pool is closed")
)
