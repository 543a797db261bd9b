package engine

import "errors"

// Sentinel errors the HTTP layer maps to status codes; tests assert
// against these with errors.Is.
var (
	// ErrValidation covers malformed input: price/amount <= 0, unknown
	// side, or a symbol longer than 10 characters.
	ErrValidation = errors.New("engine: validation error")

	// ErrInsufficientBalance is a buy reservation failure.
	ErrInsufficientBalance = errors.New("engine: insufficient balance")

	// ErrInsufficientAsset is a sell reservation failure.
	ErrInsufficientAsset = errors.New("engine: insufficient asset")

	// ErrAssetNotFound is a sell reservation failure when the user holds
	// no row for the symbol at all.
	ErrAssetNotFound = errors.New("engine: asset not found")

	// ErrCannotCancel is returned when cancel targets a non-OPEN order.
	ErrCannotCancel = errors.New("engine: order cannot be cancelled")

	// ErrNotFound is returned when an order does not exist or does not
	// belong to the caller; the two cases are not distinguished.
	ErrNotFound = errors.New("engine: order not found")

	// ErrStoreConflict is surfaced after the engine's retry budget
	// (maxConflictRetries) for a store deadlock or lock-wait-timeout is
	// exhausted.
	ErrStoreConflict = errors.New("engine: store conflict, please retry")
)
