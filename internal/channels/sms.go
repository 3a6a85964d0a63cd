package channels

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"shiftoffer_backend/internal/models"
)

const (
	// SMSMinPriority - SMS отправляются только срочным уведомлениям
	SMSMinPriority = 4
	// SMSMaxLength - длина одного сегмента
	SMSMaxLength = 160
)

// SMSClient - часть twilio Api, используемая отправителем
type SMSClient interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSConfig - учетные данные twilio
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

func (c SMSConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// SMSSender - SMS через twilio
type SMSSender struct {
	client SMSClient
	from   string
}

// NewSMSSender возвращает nil-клиент, если twilio не настроен;
// Deliver тогда отвечает disabled.
func NewSMSSender(cfg SMSConfig) *SMSSender {
	if !cfg.Enabled() {
		return &SMSSender{}
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSSender{client: client.Api, from: cfg.FromNumber}
}

func (s *SMSSender) Channel() models.NotificationChannel { return models.ChannelSMS }

// Precheck отсекает несрочные сообщения до всех остальных проверок
func (s *SMSSender) Precheck(m Message) (DeliveryStatus, bool) {
	if m.Priority < SMSMinPriority {
		return StatusSkippedLowPriority, true
	}
	return "", false
}

func (s *SMSSender) Deliver(ctx context.Context, r Recipient, m Message) (Result, error) {
	if status, skip := s.Precheck(m); skip {
		return result(models.ChannelSMS, status), nil
	}
	if s.client == nil {
		return result(models.ChannelSMS, StatusDisabled), nil
	}
	if r.Phone == "" {
		return result(models.ChannelSMS, StatusNoPhone), nil
	}
	if err := ctx.Err(); err != nil {
		return result(models.ChannelSMS, StatusFailed), err
	}

	text := m.SMSBody
	if text == "" {
		text = m.Body
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(r.Phone)
	params.SetFrom(s.from)
	params.SetBody(truncateRunes(text, SMSMaxLength))

	resp, err := s.client.CreateMessage(params)
	if err != nil {
		return result(models.ChannelSMS, StatusFailed), fmt.Errorf("twilio: %w", err)
	}

	res := result(models.ChannelSMS, StatusDelivered)
	if resp != nil && resp.Sid != nil {
		res.ProviderID = *resp.Sid
	}
	return res, nil
}
