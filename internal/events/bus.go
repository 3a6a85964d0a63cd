package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"shiftoffer_backend/pkg/apperrors"
)

// Handler обрабатывает событие. Ошибка логируется по ее severity.
type Handler func(ctx context.Context, evt Event) error

// Publisher - то, что нужно сервисам для публикации
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

type subscription struct {
	name    string
	ch      chan Event
	handler Handler
}

// Bus - in-process шина событий. У каждого подписчика своя горутина
// и буферизованный канал, порядок событий для подписчика сохраняется.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe регистрирует обработчик. Вызывать до первой публикации.
func (b *Bus) Subscribe(name string, buffer int, h Handler) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{name: name, ch: make(chan Event, buffer), handler: h}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.subs = append(b.subs, sub)

	b.wg.Add(1)
	go b.consume(sub)
}

func (b *Bus) consume(sub *subscription) {
	defer b.wg.Done()
	for evt := range sub.ch {
		b.dispatch(sub, evt)
	}
}

func (b *Bus) dispatch(sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("subscriber", sub.name),
				zap.String("event", string(evt.EventType())),
				zap.Any("panic", r),
			)
		}
	}()

	// события переживают HTTP-запрос, поэтому свой контекст
	if err := sub.handler(context.Background(), evt); err != nil {
		apperrors.LogAtSeverity(b.logger, "event handler failed", err,
			zap.String("subscriber", sub.name),
			zap.String("event", string(evt.EventType())),
			zap.String("open_shift_id", evt.ShiftRef()),
		)
	}
}

// Publish доставляет событие всем подписчикам. Если буфер подписчика
// полон, ждет, пока не отменят ctx.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.logger.Warn("event dropped: bus closed", zap.String("event", string(evt.EventType())))
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		case <-ctx.Done():
			b.logger.Warn("event dropped: context done",
				zap.String("subscriber", sub.name),
				zap.String("event", string(evt.EventType())),
			)
		}
	}
}

// Close прекращает прием событий и ждет обработки уже принятых
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
