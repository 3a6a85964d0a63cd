package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"shiftoffer_backend/internal/services/dto"
)

type stubSweeper struct {
	calls int
	stats *dto.RetryStats
	err   error
}

func (s *stubSweeper) RetryFailed(context.Context) (*dto.RetryStats, error) {
	s.calls++
	return s.stats, s.err
}

func TestNotificationRetryWorker_Sweep(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sweeper := &stubSweeper{stats: &dto.RetryStats{Scanned: 3, Retried: 2, Recovered: 1, Exhausted: 1}}
	w := NewNotificationRetryWorker(sweeper, 0, zap.New(core))

	w.Sweep(context.Background())
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 30*time.Second, w.interval)
	assert.Equal(t, 1, logs.FilterMessage("Notification retry sweep").Len())

	sweeper.stats, sweeper.err = nil, errors.New("db down")
	w.Sweep(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("Error retrying notifications").Len())
}
