package domain

import "errors"

var (
	// ErrTariffNotFound means no tariff row exists for the billing code
	// and facility tuple. It must reach the caller; a price is never
	// defaulted.
	ErrTariffNotFound = errors.New("tariff unavailable, contact administrator")

	// ErrReferenceStoreUnavailable wraps I/O failures reaching reference
	// data. It is transient and is not retried by the engine.
	ErrReferenceStoreUnavailable = errors.New("reference store unavailable")

	// ErrInvalidClaimInput rejects empty or malformed claims before
	// resolution starts.
	ErrInvalidClaimInput = errors.New("invalid claim input")
)
