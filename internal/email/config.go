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
	Timeout   time.Duration
}

// Enabled - SMTP считается настроенным при заполненном хосте
func (c *SMTPConfig) Enabled() bool {
	return c != nil && c.Host != ""
}
