package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredential      = errors.New("invalid credential")
	ErrSessionInvalid         = errors.New("session invalid or expired")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrNotOwner               = errors.New("not the owning employee")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrNotFound               = errors.New("not found")
	ErrTicketDeleted          = errors.New("ticket is deleted")
	ErrConflict               = errors.New("conflicting concurrent change")
	ErrValidation             = errors.New("validation failed")
	ErrAlreadyExists          = errors.New("already exists")
	ErrHistoryProtected       = errors.New("history must be purged before hard delete")
)

// RateLimitedError carries the wait the client must observe. It wraps
// ErrRateLimited so errors.Is keeps working at the transport layer.
type RateLimitedError struct {
	RetryAfter time.Duration
}

var ErrRateLimited = errors.New("rate limited")

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
