package types

import "errors"

// Error taxonomy shared across the engine. Callers classify failures with
// errors.Is against these sentinels and wrap them with context via fmt.Errorf.
var (
	// ErrNotFound indicates a missing agent, strategy or position.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidConfiguration indicates a malformed strategy rule or a
	// degenerate tick range. Non-retryable; reported to the operator.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInsufficientData indicates volatility or price data is unavailable.
	ErrInsufficientData = errors.New("insufficient market data")

	// ErrExternalServiceFailure indicates a price oracle, quote service or
	// chain RPC error. Retryable with bounded attempts at the call site.
	ErrExternalServiceFailure = errors.New("external service failure")

	// ErrOnChainFailure indicates a reverted or unconfirmed transaction.
	// Aborts the remainder of the workflow for the cycle.
	ErrOnChainFailure = errors.New("on-chain failure")

	// ErrAllowanceInsufficient indicates an approval could not be established.
	ErrAllowanceInsufficient = errors.New("allowance insufficient")
)
