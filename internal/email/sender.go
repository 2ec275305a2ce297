package email

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// SMTPProvider отправляет письма через SMTP.
type SMTPProvider struct {
	config *SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPProvider(config *SMTPConfig) *SMTPProvider {
	d := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	return &SMTPProvider{config: config, dialer: d}
}

func (p *SMTPProvider) SendVerificationCode(ctx context.Context, to, name, code string) error {
	body, err := renderTemplate(verificationTmpl, templateData{Name: name, Code: code, TTL: "24 часов"})
	if err != nil {
		return err
	}
	return p.send(ctx, to, "Подтверждение email", body)
}

func (p *SMTPProvider) SendPasswordResetCode(ctx context.Context, to, name, code string) error {
	body, err := renderTemplate(passwordResetTmpl, templateData{Name: name, Code: code, TTL: "1 часа"})
	if err != nil {
		return err
	}
	return p.send(ctx, to, "Сброс пароля", body)
}

func (p *SMTPProvider) send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	from := p.config.FromEmail
	if p.config.FromName != "" {
		from = m.FormatAddress(p.config.FromEmail, p.config.FromName)
	}
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
