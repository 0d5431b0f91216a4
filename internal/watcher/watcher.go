package watcher

import (
	"context"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"ico-relayer/internal/chains"
	"ico-relayer/internal/domain"
)

// Watcher polls deposit addresses until the required amount arrives. One
// goroutine per pending session; confirmation happens through the store's
// conditional update, so a session confirms exactly once even if several
// watchers race.
type Watcher struct {
	registry *chains.Registry
	store    domain.SessionStore
	logger   *zap.Logger

	// onConfirmed, when set, is invoked after a successful confirmation.
	// The settlement trigger hangs off this hook.
	onConfirmed func(sessionID string)
}

func New(registry *chains.Registry, store domain.SessionStore, logger *zap.Logger) *Watcher {
	return &Watcher{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// SetConfirmedHook registers the callback fired on confirmation. Must be
// called before any Watch goroutine starts.
func (w *Watcher) SetConfirmedHook(fn func(sessionID string)) {
	w.onConfirmed = fn
}

// pollInterval matches each family's block cadence. Bitcoin is slow on
// purpose: Esplora only shows confirmed UTXOs once a block lands.
func pollInterval(chain domain.ChainID) time.Duration {
	switch chain.Family() {
	case domain.FamilySolana:
		return 4 * time.Second
	case domain.FamilyBitcoin:
		return 30 * time.Second
	default:
		return 6 * time.Second
	}
}

// Watch polls one session until it confirms or the context ends. Sessions
// have no expiry: a payment that arrives a week late still confirms.
func (w *Watcher) Watch(ctx context.Context, session *domain.Session) {
	logger := w.logger.With(
		zap.String("session_id", session.ID),
		zap.String("chain", string(session.PayChain)),
	)

	adapter, err := w.registry.Get(session.PayChain)
	if err != nil {
		logger.Error("no adapter for session chain", zap.Error(err))
		return
	}

	asset := &domain.Asset{
		Chain:        session.PayChain,
		Type:         session.PayType,
		ContractAddr: session.PayTokenContract,
	}

	ticker := time.NewTicker(pollInterval(session.PayChain))
	defer ticker.Stop()

	logger.Info("watching deposit address",
		zap.String("required", session.RequiredChainAmount.String()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return
		case <-ticker.C:
			confirmed := w.poll(ctx, session, adapter, asset, logger)
			if confirmed {
				return
			}
		}
	}
}

// poll runs a single observation. Returns true once the session is confirmed,
// by this watcher or any other.
func (w *Watcher) poll(ctx context.Context, session *domain.Session, adapter domain.ChainAdapter, asset *domain.Asset, logger *zap.Logger) bool {
	observed, err := adapter.ReceivedAmount(ctx, session.DepositAddress, asset)
	if err != nil {
		// An unavailable adapter is not an absent payment. Keep the last
		// observation and retry on the next tick.
		if errors.Is(err, domain.ErrAdapterUnavailable) {
			logger.Warn("adapter unavailable, will retry", zap.Error(err))
			return false
		}
		logger.Error("balance read failed", zap.Error(err))
		return false
	}

	if err := w.store.RecordObservedAmount(ctx, session.ID, observed); err != nil {
		logger.Warn("failed to record observed amount", zap.Error(err))
	}

	if observed.Cmp(session.RequiredChainAmount) < 0 {
		logger.Debug("payment below threshold",
			zap.String("observed", observed.String()),
			zap.String("required", session.RequiredChainAmount.String()))
		return false
	}

	return w.confirm(ctx, session, observed, logger)
}

func (w *Watcher) confirm(ctx context.Context, session *domain.Session, observed *big.Int, logger *zap.Logger) bool {
	now := time.Now().UTC()
	applied, err := w.store.UpdatePaymentState(ctx, session.ID,
		domain.PaymentPending, domain.PaymentConfirmed,
		&domain.PaymentPatch{ConfirmedAt: &now})
	if err != nil {
		logger.Error("failed to confirm payment", zap.Error(err))
		return false
	}

	if !applied {
		// Someone else confirmed first; either way the session is done.
		logger.Info("payment already confirmed elsewhere")
		return true
	}

	logger.Info("payment confirmed",
		zap.String("observed", observed.String()),
		zap.String("required", session.RequiredChainAmount.String()))

	if w.onConfirmed != nil {
		w.onConfirmed(session.ID)
	}

	return true
}
