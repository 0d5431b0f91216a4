package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ico-relayer/internal/domain"
	"ico-relayer/internal/usecase"
)

const resumeBatchSize = 500

// PaymentMonitor restores watch goroutines after a restart and retries the
// settlement of confirmed sessions whose purchase has not completed, for
// example after a transient settlement-chain outage released the claim.
type PaymentMonitor struct {
	sessions *usecase.SessionUsecase
	store    domain.SessionStore
	interval time.Duration
	logger   *zap.Logger
}

func NewPaymentMonitor(sessions *usecase.SessionUsecase, store domain.SessionStore, interval time.Duration, logger *zap.Logger) *PaymentMonitor {
	return &PaymentMonitor{
		sessions: sessions,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until the context ends.
func (m *PaymentMonitor) Start(ctx context.Context) {
	resumed, err := m.sessions.ResumeWatches(ctx, resumeBatchSize)
	if err != nil {
		m.logger.Error("failed to resume pending watches", zap.Error(err))
	} else if resumed > 0 {
		m.logger.Info("resumed pending watches", zap.Int("count", resumed))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("payment monitor started", zap.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("payment monitor stopped")
			return
		case <-ticker.C:
			m.retrySettlements(ctx)
		}
	}
}

func (m *PaymentMonitor) retrySettlements(ctx context.Context) {
	sessions, err := m.store.ListByPaymentState(ctx, domain.PaymentConfirmed, resumeBatchSize)
	if err != nil {
		m.logger.Error("failed to list confirmed sessions", zap.Error(err))
		return
	}

	for _, session := range sessions {
		if session.SettlementState != domain.SettlementPending {
			continue
		}

		if err := m.sessions.Settle(ctx, session.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyExecuted) {
				continue
			}
			m.logger.Warn("settlement retry failed",
				zap.String("session_id", session.ID),
				zap.Error(err))
		}
	}
}
