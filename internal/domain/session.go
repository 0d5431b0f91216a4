package domain

import (
	"context"
	"math/big"
	"time"
)

// PaymentState tracks the deposit leg. Transitions are one-way.
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentConfirmed PaymentState = "confirmed"
)

// SettlementState tracks the purchase leg. The executing state is the claim
// a settlement trigger takes before touching the chain, so two concurrent
// triggers cannot both run the purchase; executed and failed are terminal.
type SettlementState string

const (
	SettlementPending   SettlementState = "pending"
	SettlementExecuting SettlementState = "executing"
	SettlementExecuted  SettlementState = "executed"
	SettlementFailed    SettlementState = "failed"
)

// Session is one buyer purchase intent and its cross-chain lifecycle record.
// Sessions are never deleted.
type Session struct {
	ID              string
	DerivationIndex int64

	DepositAddress string
	// DepositSecret is the deposit key, write-once at creation. It is
	// recoverable from the master seed and DerivationIndex and must never
	// appear in logs or API responses.
	DepositSecret string

	PayChain ChainID
	PayType  AssetType
	// PayTokenContract is set for token payments (allow-listed per chain).
	PayTokenContract *string

	BuyerSettlementAddress string

	// FiatAmount is the requested purchase size in fiat minor units (cents).
	FiatAmount int64
	// RequiredChainAmount is FiatAmount converted to deposit-chain minor
	// units at creation. The price is locked at quote time; the watcher
	// always compares against this frozen value.
	RequiredChainAmount *big.Int

	PaymentState    PaymentState
	SettlementState SettlementState

	// LastObservedAmount is the watcher's most recent successful adapter
	// read, exposed so a caller can tell "underpaid" from "adapter down".
	LastObservedAmount *big.Int

	DepositTxRef    *string
	SettlementTxRef *string // purchase tx on the settlement chain
	ForwardTxRef    *string // token transfer to the buyer
	SweepTxRef      *string
	FailureReason   *string

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	ExecutedAt  *time.Time
	SweptAt     *time.Time
}

// PaymentPatch carries the fields written together with a payment transition.
type PaymentPatch struct {
	DepositTxRef *string
	ConfirmedAt  *time.Time
}

// SettlementPatch carries the fields written together with a settlement
// transition.
type SettlementPatch struct {
	SettlementTxRef *string
	ForwardTxRef    *string
	FailureReason   *string
	ExecutedAt      *time.Time
}

// SessionStore is the single source of truth for session state. All
// cross-request coordination goes through its conditional updates; the
// engine holds no cross-process locks of its own.
type SessionStore interface {
	// NextDerivationIndex allocates a fresh index. Indexes are never reused,
	// even when the session that claimed one is never created.
	NextDerivationIndex(ctx context.Context) (int64, error)

	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// UpdatePaymentState applies the transition only if the stored payment
	// state equals from. Returns false without error on a state mismatch.
	UpdatePaymentState(ctx context.Context, id string, from, to PaymentState, patch *PaymentPatch) (bool, error)

	// UpdateSettlementState is the settlement guard: a single conditional
	// write that either claims the transition or reports the conflict.
	UpdateSettlementState(ctx context.Context, id string, from, to SettlementState, patch *SettlementPatch) (bool, error)

	// RecordObservedAmount stores the watcher's latest successful read.
	RecordObservedAmount(ctx context.Context, id string, amount *big.Int) error

	ListByPaymentState(ctx context.Context, state PaymentState, limit int) ([]*Session, error)

	// ListSweepable returns executed sessions whose deposit funds have not
	// been swept yet.
	ListSweepable(ctx context.Context, limit int) ([]*Session, error)

	MarkSwept(ctx context.Context, id, txRef string) error
}
