package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WindowHandler вызывается, когда срабатывает таймер окна
type WindowHandler func(ctx context.Context, openShiftID string)

type windowTimer struct {
	timer      *time.Timer
	generation uint64
}

// WindowScheduler держит не больше одного живого таймера на запрос смены.
// Каждый Schedule получает новое поколение; сработавший таймер старого
// поколения ничего не делает.
type WindowScheduler struct {
	mu         sync.Mutex
	timers     map[string]*windowTimer
	generation uint64
	handler    WindowHandler
	stopped    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewWindowScheduler(logger *zap.Logger) *WindowScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &WindowScheduler{
		timers: make(map[string]*windowTimer),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("window_scheduler"),
	}
}

// SetHandler задается до первого Schedule (сервис очереди сам зависит от планировщика)
func (s *WindowScheduler) SetHandler(h WindowHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Schedule заменяет текущий таймер запроса новым
func (s *WindowScheduler) Schedule(openShiftID string, after time.Duration) {
	if after < 0 {
		after = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if existing, ok := s.timers[openShiftID]; ok {
		existing.timer.Stop()
	}

	s.generation++
	gen := s.generation
	s.timers[openShiftID] = &windowTimer{
		timer:      time.AfterFunc(after, func() { s.fire(openShiftID, gen) }),
		generation: gen,
	}

	s.logger.Debug("window check scheduled",
		zap.String("open_shift_id", openShiftID),
		zap.Duration("after", after),
		zap.Uint64("generation", gen),
	)
}

func (s *WindowScheduler) Cancel(openShiftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[openShiftID]; ok {
		existing.timer.Stop()
		delete(s.timers, openShiftID)
	}
}

// Pending - есть ли живой таймер у запроса
func (s *WindowScheduler) Pending(openShiftID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[openShiftID]
	return ok
}

func (s *WindowScheduler) fire(openShiftID string, gen uint64) {
	s.mu.Lock()
	current, ok := s.timers[openShiftID]
	if s.stopped || !ok || current.generation != gen {
		s.mu.Unlock()
		s.logger.Debug("stale window timer discarded",
			zap.String("open_shift_id", openShiftID),
			zap.Uint64("generation", gen),
		)
		return
	}
	delete(s.timers, openShiftID)
	handler := s.handler
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	if handler == nil {
		s.logger.Warn("window timer fired without handler", zap.String("open_shift_id", openShiftID))
		return
	}
	handler(s.ctx, openShiftID)
}

// Stop гасит все таймеры и ждет завершения уже запущенных обработчиков
func (s *WindowScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("Window scheduler stopped")
}
