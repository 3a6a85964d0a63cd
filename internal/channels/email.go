package channels

import (
	"context"
	"fmt"

	"shiftoffer_backend/internal/email"
	"shiftoffer_backend/internal/models"
)

// EmailSender - HTML письмо с зашифрованной копией данных
type EmailSender struct {
	provider email.Provider
	renderer email.TemplateRenderer
	sealer   *email.PayloadSealer
}

func NewEmailSender(provider email.Provider, renderer email.TemplateRenderer, sealer *email.PayloadSealer) *EmailSender {
	return &EmailSender{provider: provider, renderer: renderer, sealer: sealer}
}

func (s *EmailSender) Channel() models.NotificationChannel { return models.ChannelEmail }

func (s *EmailSender) Deliver(ctx context.Context, r Recipient, m Message) (Result, error) {
	if s.provider == nil {
		return result(models.ChannelEmail, StatusDisabled), nil
	}
	if r.Email == "" {
		return result(models.ChannelEmail, StatusNoEmail), nil
	}

	data := email.TemplateData{
		"Subject":  m.Subject,
		"Body":     m.Body,
		"Priority": m.Priority,
	}
	if url, ok := m.Data["action_url"].(string); ok {
		data["ActionURL"] = url
	}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(map[string]any{
			"notification_id": m.NotificationID,
			"type":            m.Type,
			"data":            m.Data,
		})
		if err != nil {
			return result(models.ChannelEmail, StatusFailed), fmt.Errorf("seal payload: %w", err)
		}
		data["SealedPayload"] = sealed
	}

	templateName := m.EmailTemplate
	if templateName == "" {
		templateName = "notification"
	}
	html, err := s.renderer.Render(templateName, data)
	if err != nil {
		return result(models.ChannelEmail, StatusFailed), err
	}

	msg := &email.Email{
		To:       []string{r.Email},
		Subject:  m.Subject,
		Body:     m.Body,
		HTMLBody: html,
		Headers:  map[string]string{"X-Notification-ID": m.NotificationID},
	}
	if m.Invite != nil {
		msg.Attachments = append(msg.Attachments, email.BuildShiftInvite(*m.Invite, m.CreatedAt))
	}

	id, err := s.provider.Send(ctx, msg)
	if err != nil {
		return result(models.ChannelEmail, StatusFailed), err
	}

	res := result(models.ChannelEmail, StatusDelivered)
	res.ProviderID = id
	return res, nil
}
