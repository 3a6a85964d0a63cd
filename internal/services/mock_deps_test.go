package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"shiftoffer_backend/internal/channels"
	"shiftoffer_backend/internal/events"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/services/dto"
)

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func (p *recordingPublisher) last(t events.Type) events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].EventType() == t {
			return p.events[i]
		}
	}
	return nil
}

// fakeScheduler фиксирует последнюю постановку таймера по смене
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Duration
	cancelled map[string]int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: map[string]time.Duration{}, cancelled: map[string]int{}}
}

func (s *fakeScheduler) Schedule(id string, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[id] = after
}

func (s *fakeScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, id)
	s.cancelled[id]++
}

func (s *fakeScheduler) pending(id string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.scheduled[id]
	return d, ok
}

// fakeNotifier записывает запросы на рассылку вместо доставки
type fakeNotifier struct {
	mu   sync.Mutex
	sent []dto.SendNotificationRequest
}

func (n *fakeNotifier) SendNotification(_ context.Context, req *dto.SendNotificationRequest) (*dto.SendNotificationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *req)
	return &dto.SendNotificationResult{NotificationID: "n", Status: models.NotificationStatusSent}, nil
}

func (n *fakeNotifier) recipients(t models.NotificationType) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, r := range n.sent {
		if r.Type == t {
			out = append(out, r.UserID)
		}
	}
	return out
}

func (n *fakeNotifier) GetPreferences(context.Context, string) ([]dto.PreferenceView, error) {
	return nil, nil
}

func (n *fakeNotifier) SetPreference(context.Context, string, *dto.SetPreferenceRequest) error {
	return nil
}

func (n *fakeNotifier) SavePushSubscription(context.Context, string, *dto.PushSubscriptionRequest) error {
	return nil
}

func (n *fakeNotifier) RetryFailed(context.Context) (*dto.RetryStats, error) {
	return &dto.RetryStats{}, nil
}

func (n *fakeNotifier) GetDeliveryStats(context.Context) (*dto.DeliveryStats, error) {
	return &dto.DeliveryStats{}, nil
}

func (n *fakeNotifier) HandleEvent(context.Context, events.Event) error { return nil }

// fakeSender - канал с управляемым результатом
type fakeSender struct {
	channel  models.NotificationChannel
	status   channels.DeliveryStatus
	fail     bool
	precheck func(channels.Message) (channels.DeliveryStatus, bool)

	mu    sync.Mutex
	calls int
}

func (s *fakeSender) Channel() models.NotificationChannel { return s.channel }

func (s *fakeSender) Deliver(_ context.Context, _ channels.Recipient, _ channels.Message) (channels.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail {
		return channels.Result{Channel: s.channel, Status: channels.StatusFailed}, errors.New("provider unavailable")
	}
	status := s.status
	if status == "" {
		status = channels.StatusDelivered
	}
	return channels.Result{Channel: s.channel, Status: status, ProviderID: "p-1"}, nil
}

func (s *fakeSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakePrecheckSender добавляет к fakeSender проверку до настроек
type fakePrecheckSender struct {
	*fakeSender
}

func (s fakePrecheckSender) Precheck(m channels.Message) (channels.DeliveryStatus, bool) {
	return s.precheck(m)
}
