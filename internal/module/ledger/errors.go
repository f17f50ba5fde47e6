package ledger

import "errors"

var (
	// ErrInsufficientCredits is returned when a reservation would take the
	// balance below zero. It is terminal for the request; the caller must not
	// retry automatically.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrBalanceNotFound is returned when an account has no balance row.
	ErrBalanceNotFound = errors.New("credit balance not found")

	// ErrReservationSettled is returned when a reservation is committed or
	// released more than once.
	ErrReservationSettled = errors.New("reservation already settled")
)
