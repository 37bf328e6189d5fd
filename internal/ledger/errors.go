// Package ledger contains in-process reference implementations of the asset,
// currency and vault contracts the store settles against.
package ledger

import "errors"

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNonexistentToken      = errors.New("nonexistent token")
	ErrNotOwner              = errors.New("not token owner")
	ErrNotApproved           = errors.New("caller is not owner nor approved")
	ErrZeroAddress           = errors.New("zero address")
	ErrUnknownCollection     = errors.New("unknown collection")
)
