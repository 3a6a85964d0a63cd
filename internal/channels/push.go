package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"shiftoffer_backend/internal/models"
)

// MaxPushPayloadBytes - лимит открытого текста, чтобы после шифрования
// уложиться в 4 КБ web push
const MaxPushPayloadBytes = 3800

// PushConfig - VAPID ключи
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	TTLSeconds      int
}

func (c PushConfig) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

type pushSendFunc func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// PushPayload - содержимое web push уведомления
type PushPayload struct {
	Title              string                  `json:"title"`
	Body               string                  `json:"body"`
	Type               models.NotificationType `json:"type"`
	NotificationID     string                  `json:"notification_id"`
	RequireInteraction bool                    `json:"requireInteraction"`
	Data               map[string]any          `json:"data,omitempty"`
}

// PushSender - web push через VAPID
type PushSender struct {
	cfg  PushConfig
	send pushSendFunc
}

func NewPushSender(cfg PushConfig) *PushSender {
	if cfg.TTLSeconds == 0 {
		cfg.TTLSeconds = 3600
	}
	return &PushSender{cfg: cfg, send: webpush.SendNotification}
}

func (s *PushSender) Channel() models.NotificationChannel { return models.ChannelPush }

func (s *PushSender) Deliver(ctx context.Context, r Recipient, m Message) (Result, error) {
	if !s.cfg.Enabled() {
		return result(models.ChannelPush, StatusDisabled), nil
	}
	if len(r.PushSubscription) == 0 {
		return result(models.ChannelPush, StatusNoSubscription), nil
	}

	var sub webpush.Subscription
	if err := json.Unmarshal(r.PushSubscription, &sub); err != nil || sub.Endpoint == "" {
		return result(models.ChannelPush, StatusNoSubscription), nil
	}

	payload, err := BuildPushPayload(m)
	if err != nil {
		return result(models.ChannelPush, StatusFailed), err
	}

	urgency := webpush.UrgencyNormal
	if m.Priority >= 4 {
		urgency = webpush.UrgencyHigh
	}

	resp, err := s.send(payload, &sub, &webpush.Options{
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTLSeconds,
		Urgency:         urgency,
	})
	if err != nil {
		return result(models.ChannelPush, StatusFailed), fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// подписка отозвана браузером
		return result(models.ChannelPush, StatusNoSubscription), nil
	case resp.StatusCode >= 300:
		return result(models.ChannelPush, StatusFailed), fmt.Errorf("web push: status %d", resp.StatusCode)
	}

	res := result(models.ChannelPush, StatusDelivered)
	res.ProviderID = resp.Header.Get("Location")
	return res, nil
}

// BuildPushPayload собирает JSON и ужимает его до MaxPushPayloadBytes:
// сначала выкидывает data, потом укорачивает текст.
func BuildPushPayload(m Message) ([]byte, error) {
	p := PushPayload{
		Title:              m.Subject,
		Body:               m.Body,
		Type:               m.Type,
		NotificationID:     m.NotificationID,
		RequireInteraction: m.Priority >= 4,
		Data:               m.Data,
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if len(raw) <= MaxPushPayloadBytes {
		return raw, nil
	}

	p.Data = nil
	p.Title = truncateRunes(p.Title, 120)
	for {
		raw, err = json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if len(raw) <= MaxPushPayloadBytes {
			return raw, nil
		}
		over := len(raw) - MaxPushPayloadBytes
		runes := len([]rune(p.Body))
		if runes == 0 {
			return nil, fmt.Errorf("push payload exceeds %d bytes", MaxPushPayloadBytes)
		}
		cut := runes - over
		if cut < 0 {
			cut = 0
		}
		p.Body = truncateRunes(p.Body, cut)
	}
}
