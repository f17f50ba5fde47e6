package payment

import "errors"

var (
	// ErrPurchaseNotFound is returned when no purchase matches the lookup.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrDuplicatePurchase is returned when the external payment ID already exists.
	ErrDuplicatePurchase = errors.New("purchase already recorded")
	// ErrUnknownAccount is returned when the event names no resolvable account.
	ErrUnknownAccount = errors.New("unknown account")
)
