package email

import (
	"context"

	"courierdesk_backend/internal/logger"
)

// Provider определяет интерфейс для отправки писем.
type Provider interface {
	// SendVerificationCode отправляет код подтверждения email
	SendVerificationCode(ctx context.Context, to, name, code string) error

	// SendPasswordResetCode отправляет код сброса пароля
	SendPasswordResetCode(ctx context.Context, to, name, code string) error
}

// LogProvider пишет письма в лог вместо отправки. Используется в
// development-окружении и в тестах, когда SMTP не настроен.
type LogProvider struct{}

func NewLogProvider() *LogProvider {
	return &LogProvider{}
}

func (p *LogProvider) SendVerificationCode(ctx context.Context, to, name, code string) error {
	logger.CtxInfo(ctx, "email verification code (smtp disabled)", "to", to, "code", code)
	return nil
}

func (p *LogProvider) SendPasswordResetCode(ctx context.Context, to, name, code string) error {
	logger.CtxInfo(ctx, "password reset code (smtp disabled)", "to", to, "code", code)
	return nil
}
