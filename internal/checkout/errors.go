package checkout

import "errors"

var (
	// ErrPaymentNotSucceeded means the processor does not report the intent as paid.
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")
	ErrAmountMismatch      = errors.New("declared amount does not match the items")
)
