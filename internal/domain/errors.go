package domain

import "errors"

// Failure classes surfaced by store operations and their collaborators.
var (
	ErrInvalidState       = errors.New("invalid state")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrExpiredOrNotYetDue = errors.New("expired or not yet due")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSignatureInvalid   = errors.New("invalid signature")
	ErrTransferFailure    = errors.New("transfer failure")
)

// Infrastructure errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
