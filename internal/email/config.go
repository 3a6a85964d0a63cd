package email

import "time"

// SMTPConfig содержит конфигурацию SMTP сервера
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	UseTLS    bool
	Timeout   time.Duration
}

// Enabled - почта настроена
func (c *SMTPConfig) Enabled() bool {
	return c != nil && c.Host != ""
}
