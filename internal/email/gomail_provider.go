package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// dialer - часть *gomail.Dialer, подменяется в тестах
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// defaultSendTimeout - если в конфиге не задан
const defaultSendTimeout = 30 * time.Second

// GomailProvider отправляет письма через SMTP (gomail)
type GomailProvider struct {
	config *SMTPConfig
	dialer dialer
}

// NewGomailProvider создает новый SMTP провайдер
func NewGomailProvider(config *SMTPConfig) *GomailProvider {
	d := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	if config.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: config.Host, MinVersion: tls.VersionTLS12}
	}
	return &GomailProvider{config: config, dialer: d}
}

// Send отправляет email сообщение
func (p *GomailProvider) Send(ctx context.Context, email *Email) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), p.config.Host)
	m := p.buildMessage(email, messageID)

	if err := p.send(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

// send ограничивает отправку таймаутом: у gomail.Dialer своего нет
func (p *GomailProvider) send(ctx context.Context, m *gomail.Message) error {
	timeout := p.config.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Validate проверяет конфигурацию SMTP
func (p *GomailProvider) Validate() error {
	if p.config.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if p.config.Port <= 0 || p.config.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", p.config.Port)
	}
	return nil
}

func (p *GomailProvider) buildMessage(email *Email, messageID string) *gomail.Message {
	m := gomail.NewMessage()

	from := email.From
	if from == "" {
		from = m.FormatAddress(p.config.FromEmail, p.config.FromName)
	}
	m.SetHeader("From", from)
	m.SetHeader("To", email.To...)
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", messageID)
	for k, v := range email.Headers {
		m.SetHeader(k, v)
	}

	if email.Body != "" {
		m.SetBody("text/plain", email.Body)
		if email.HTMLBody != "" {
			m.AddAlternative("text/html", email.HTMLBody)
		}
	} else {
		m.SetBody("text/html", email.HTMLBody)
	}

	for _, a := range email.Attachments {
		content := a.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {a.ContentType},
			}))
		}
		m.Attach(a.Name, settings...)
	}
	return m
}
