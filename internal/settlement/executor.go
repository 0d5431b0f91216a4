package settlement

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// SettlementChain is what the executor needs from the settlement network.
// ICOContract is the production implementation.
type SettlementChain interface {
	SaleTokenBalance(ctx context.Context) (*big.Int, error)
	QuoteNativeAmount(ctx context.Context, fiatCents int64) (*big.Int, error)
	Buy(ctx context.Context, amountWei *big.Int) (txHash string, err error)
	Forward(ctx context.Context, buyer string, amount *big.Int) (txHash string, err error)
}

// Executor runs the purchase leg at most once per session. The store's
// conditional settlement transition is the only exclusion mechanism: whoever
// wins the pending-to-executing write owns the purchase, everyone else gets
// ErrAlreadyExecuted.
type Executor struct {
	store  domain.SessionStore
	chain  SettlementChain
	logger *zap.Logger
}

func NewExecutor(store domain.SessionStore, chain SettlementChain, logger *zap.Logger) *Executor {
	return &Executor{
		store:  store,
		chain:  chain,
		logger: logger,
	}
}

// Execute settles one confirmed session. The delivered amount is measured as
// the relayer's sale-token balance difference around the purchase, then
// forwarded to the buyer.
func (e *Executor) Execute(ctx context.Context, sessionID string) error {
	logger := e.logger.With(zap.String("session_id", sessionID))

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.PaymentState != domain.PaymentConfirmed {
		return domain.ErrPaymentNotConfirmed
	}

	claimed, err := e.store.UpdateSettlementState(ctx, sessionID,
		domain.SettlementPending, domain.SettlementExecuting, nil)
	if err != nil {
		return fmt.Errorf("failed to claim settlement: %w", err)
	}
	if !claimed {
		return domain.ErrAlreadyExecuted
	}

	logger.Info("settlement claimed")

	if err := e.settle(ctx, session, logger); err != nil {
		return err
	}

	return nil
}

func (e *Executor) settle(ctx context.Context, session *domain.Session, logger *zap.Logger) error {
	balanceBefore, err := e.chain.SaleTokenBalance(ctx)
	if err != nil {
		return e.release(ctx, session.ID, fmt.Errorf("read balance before purchase: %w", err))
	}

	amountWei, err := e.chain.QuoteNativeAmount(ctx, session.FiatAmount)
	if err != nil {
		return e.release(ctx, session.ID, err)
	}

	// Past this point the claim is never released. Buy may have broadcast the
	// purchase before the error came back (receipt wait cut short, ambiguous
	// broadcast), and a released claim would let the monitor buy again while
	// the first transaction can still mine. Terminal failure with whatever
	// hash we have; an operator resolves the rest.
	buyTx, err := e.chain.Buy(ctx, amountWei)
	if err != nil {
		return e.fail(ctx, session.ID, buyTx, err)
	}

	balanceAfter, err := e.chain.SaleTokenBalance(ctx)
	if err != nil {
		// The purchase landed; failing here loses the delivered measurement,
		// so record the buy and mark the session failed for operator review.
		return e.fail(ctx, session.ID, buyTx, fmt.Errorf("read balance after purchase: %w", err))
	}

	delivered := new(big.Int).Sub(balanceAfter, balanceBefore)
	if delivered.Sign() <= 0 {
		return e.fail(ctx, session.ID, buyTx,
			fmt.Errorf("purchase delivered no tokens (before=%s after=%s)", balanceBefore, balanceAfter))
	}

	forwardTx, err := e.chain.Forward(ctx, session.BuyerSettlementAddress, delivered)
	if err != nil {
		return e.fail(ctx, session.ID, buyTx, fmt.Errorf("forward to buyer: %w", err))
	}

	now := time.Now().UTC()
	applied, err := e.store.UpdateSettlementState(ctx, session.ID,
		domain.SettlementExecuting, domain.SettlementExecuted,
		&domain.SettlementPatch{
			SettlementTxRef: &buyTx,
			ForwardTxRef:    &forwardTx,
			ExecutedAt:      &now,
		})
	if err != nil {
		return fmt.Errorf("failed to record settlement: %w", err)
	}
	if !applied {
		return domain.ErrStateConflict
	}

	logger.Info("settlement executed",
		zap.String("buy_tx", buyTx),
		zap.String("forward_tx", forwardTx),
		zap.String("delivered", delivered.String()))

	return nil
}

// release hands the claim back so a later trigger can retry. Only safe for
// failures that happen before the purchase call goes out.
func (e *Executor) release(ctx context.Context, sessionID string, cause error) error {
	if _, err := e.store.UpdateSettlementState(ctx, sessionID,
		domain.SettlementExecuting, domain.SettlementPending, nil); err != nil {
		e.logger.Error("failed to release settlement claim",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return cause
}

// fail records a terminal settlement failure.
func (e *Executor) fail(ctx context.Context, sessionID, buyTx string, cause error) error {
	reason := cause.Error()
	patch := &domain.SettlementPatch{FailureReason: &reason}
	if buyTx != "" {
		patch.SettlementTxRef = &buyTx
	}

	if _, err := e.store.UpdateSettlementState(ctx, sessionID,
		domain.SettlementExecuting, domain.SettlementFailed, patch); err != nil {
		e.logger.Error("failed to record settlement failure",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	return cause
}
