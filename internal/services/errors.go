package services

import "errors"

var (
	// ErrUnrecognizedTransactionType is returned for a type other than
	// deposit, withdraw_request or withdraw. Nothing is written to the store.
	ErrUnrecognizedTransactionType = errors.New("unrecognized transaction type")

	// ErrInvalidTransaction is returned when a required field is missing or the amount is not positive.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrReservationTimeout is returned when a reservation check misses its deadline.
	ErrReservationTimeout = errors.New("reservation check timed out")

	// ErrReservationCheckFailed is returned when a reservation check fails for any other reason.
	ErrReservationCheckFailed = errors.New("reservation check failed")
)
