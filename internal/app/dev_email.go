package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/email"
	"shiftoffer_backend/internal/logger"
)

// logEmailProvider - для локальной разработки без SMTP. Письмо не уходит,
// в лог пишется только хэш адреса.
type logEmailProvider struct {
	logger *zap.Logger
}

func (p *logEmailProvider) Send(_ context.Context, msg *email.Email) (string, error) {
	id := uuid.NewString()
	fields := []zap.Field{
		zap.String("message_id", id),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	}
	for _, to := range msg.To {
		fields = append(fields, logger.PHI("to", to))
	}
	p.logger.Info("email not sent (development provider)", fields...)
	return id, nil
}

func (p *logEmailProvider) Validate() error { return nil }
