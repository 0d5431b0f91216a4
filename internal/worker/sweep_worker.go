package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ico-relayer/internal/usecase"
)

const sweepBatchSize = 50

// SweepWorker periodically drains settled deposit addresses.
type SweepWorker struct {
	sweeper  *usecase.Sweeper
	interval time.Duration
	logger   *zap.Logger
}

func NewSweepWorker(sweeper *usecase.Sweeper, interval time.Duration, logger *zap.Logger) *SweepWorker {
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until the context ends.
func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sweep worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweep worker stopped")
			return
		case <-ticker.C:
			if err := w.sweeper.SweepOnce(ctx, sweepBatchSize); err != nil {
				w.logger.Error("sweep batch failed", zap.Error(err))
			}
		}
	}
}
