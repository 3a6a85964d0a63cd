package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shiftoffer_backend/internal/services/dto"
)

// RetrySweeper - NotificationService.RetryFailed
type RetrySweeper interface {
	RetryFailed(ctx context.Context) (*dto.RetryStats, error)
}

type NotificationRetryWorker struct {
	sweeper  RetrySweeper
	interval time.Duration
	logger   *zap.Logger
}

func NewNotificationRetryWorker(sweeper RetrySweeper, interval time.Duration, logger *zap.Logger) *NotificationRetryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &NotificationRetryWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.Named("notification_retry_worker"),
	}
}

// Start запускает периодическую повторную рассылку
func (w *NotificationRetryWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *NotificationRetryWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Notification retry worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep - один проход. Проходы идут последовательно в одной горутине,
// поэтому запись не берется в работу дважды.
func (w *NotificationRetryWorker) Sweep(ctx context.Context) {
	stats, err := w.sweeper.RetryFailed(ctx)
	if err != nil {
		w.logger.Error("Error retrying notifications", zap.Error(err))
		return
	}
	if stats.Retried > 0 || stats.Exhausted > 0 {
		w.logger.Info("Notification retry sweep",
			zap.Int("scanned", stats.Scanned),
			zap.Int("retried", stats.Retried),
			zap.Int("recovered", stats.Recovered),
			zap.Int("exhausted", stats.Exhausted),
		)
	}
}
