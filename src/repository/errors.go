package repository

import "errors"

var (
	// ErrConcurrentUpdate is returned when a compare-and-swap write lost a race with another writer.
	ErrConcurrentUpdate = errors.New("concurrent update detected")

	// ErrInsufficientBuyingPower is returned when a guarded debit found less than the requested amount.
	ErrInsufficientBuyingPower = errors.New("insufficient buying power")
)
