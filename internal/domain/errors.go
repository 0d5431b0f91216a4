package domain

import "errors"

// Engine error taxonomy. Callers branch with errors.Is; everything else is
// wrapped context.
var (
	// ErrInvalidSeed means the master mnemonic or seed failed validation.
	ErrInvalidSeed = errors.New("invalid master seed")

	// ErrUnsupportedChain means a chain identifier outside the closed set.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrAdapterUnavailable marks a transient RPC or transport failure. It
	// is retryable and must never be read as "not paid yet".
	ErrAdapterUnavailable = errors.New("chain adapter unavailable")

	// ErrPriceUnavailable aborts session creation or settlement. The engine
	// fails closed rather than defaulting a price.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrSettlementReverted is terminal for a session. A reverted purchase
	// is never retried automatically.
	ErrSettlementReverted = errors.New("settlement transaction reverted")

	// ErrAlreadyExecuted is the guard rejection when a settlement trigger
	// loses the claim race. Callers treat it as an idempotent no-op.
	ErrAlreadyExecuted = errors.New("settlement already executed or in progress")

	// ErrPaymentNotConfirmed rejects settlement of an unpaid session.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")

	// ErrStateConflict is returned by the store when a conditional update
	// found a different state than expected.
	ErrStateConflict = errors.New("session state conflict")

	// ErrSessionNotFound is returned by the store for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
)
