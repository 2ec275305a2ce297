package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"courierdesk_backend/internal/email"
	"courierdesk_backend/internal/logger"
	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/ratelimit"
	"courierdesk_backend/internal/repositories"
	"courierdesk_backend/internal/services/dto"
	"courierdesk_backend/pkg/apperrors"

	"golang.org/x/crypto/bcrypt"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	emailCodeTTL = 24 * time.Hour
	resetCodeTTL = 1 * time.Hour
)

// dummyHash - bcrypt-хеш для выравнивания времени ответа при
// несуществующем email: стоимость проверки одинакова в обеих ветках.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest, ip string) (*dto.LoginResponse, error)
	Logout(ctx context.Context, userID string) error
	InvalidateSessions(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, req *dto.VerifyEmailRequest) error
	ResendVerification(ctx context.Context, userEmail string) error
	RequestPasswordReset(ctx context.Context, userEmail string) error
	ValidateResetCode(ctx context.Context, userEmail, code string) error
	ResetPassword(ctx context.Context, req *dto.PasswordResetConfirm) error
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) (*models.User, error)
}

type AuthServiceImpl struct {
	userRepo      repositories.UserRepository
	codeRepo      repositories.VerificationCodeRepository
	tokenService  TokenService
	limiter       *ratelimit.Limiter
	emailProvider email.Provider
}

func NewAuthService(
	userRepo repositories.UserRepository,
	codeRepo repositories.VerificationCodeRepository,
	tokenService TokenService,
	limiter *ratelimit.Limiter,
	emailProvider email.Provider,
) AuthService {
	return &AuthServiceImpl{
		userRepo:      userRepo,
		codeRepo:      codeRepo,
		tokenService:  tokenService,
		limiter:       limiter,
		emailProvider: emailProvider,
	}
}

// Register - регистрация нового пользователя
func (s *AuthServiceImpl) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error) {
	if len(req.Password) < 6 {
		return nil, apperrors.ErrWeakPassword
	}

	role := req.Role
	if role == "" {
		role = models.UserRoleNormal
	}
	// Админские роли через публичную регистрацию не выдаются
	if role != models.UserRoleNormal && role != models.UserRoleCorporate {
		return nil, apperrors.ErrInvalidUserRole
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	user := &models.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hashedPassword),
		Role:         role,
		IsActive:     true,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if apperrors.Is(err, repositories.ErrUserAlreadyExists) {
			return nil, apperrors.ErrEmailAlreadyExists
		}
		return nil, apperrors.InternalError(err)
	}

	if err := s.issueVerificationCode(ctx, user, models.PurposeEmailVerification); err != nil {
		// Пользователь создан, код можно запросить повторно
		logger.CtxWithError(ctx, "failed to issue verification code", err, "user_id", user.ID)
	}

	return dto.NewUserResponse(user), nil
}

// Login - аутентификация пользователя. Лимитер проверяется до обращения
// к учетным данным; при недоступном Redis вход отклоняется.
func (s *AuthServiceImpl) Login(ctx context.Context, req *dto.LoginRequest, ip string) (*dto.LoginResponse, error) {
	verdict, err := s.limiter.Check(ctx, ip, req.Email)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if !verdict.Allowed {
		// Попытка поверх исчерпанного лимита тоже учитывается: серия
		// таких попыток копит нарушения и доводит до строгой блокировки
		s.recordFailure(ctx, ip, req.Email)
		return nil, apperrors.ErrRateLimited(int64(verdict.RetryAfter.Seconds()))
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			// Тратим столько же времени, сколько реальная проверка,
			// и учитываем попытку: неизвестный email неотличим от
			// неверного пароля
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			s.recordFailure(ctx, ip, req.Email)
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.InternalError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailure(ctx, ip, req.Email)
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsEmailVerified {
		return nil, apperrors.ErrEmailNotVerified
	}
	if !user.IsActive {
		return nil, apperrors.ErrAccountInactive
	}

	// Каждый успешный вход двигает версию сессии: предыдущие токены
	// пользователя перестают действовать, активна одна сессия
	fresh, err := s.userRepo.BumpSessionVersion(ctx, user.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	token, err := s.tokenService.Issue(fresh)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	// Успешный вход обнуляет счетчики попыток; строгая блокировка,
	// если она была, истекает только по TTL
	if err := s.limiter.Reset(ctx, ip, req.Email); err != nil {
		logger.CtxWithError(ctx, "failed to reset rate limit counters", err, "user_id", user.ID)
	}
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.CtxWithError(ctx, "failed to update last login", err, "user_id", user.ID)
	}

	return &dto.LoginResponse{User: dto.NewUserResponse(fresh), Token: token}, nil
}

func (s *AuthServiceImpl) recordFailure(ctx context.Context, ip, email string) {
	if err := s.limiter.RecordFailure(ctx, ip, email); err != nil {
		logger.CtxWithError(ctx, "failed to record login failure", err)
	}
}

// Logout отзывает все выпущенные токены пользователя: версия сессии
// растет, старые токены перестают проходить верификацию.
func (s *AuthServiceImpl) Logout(ctx context.Context, userID string) error {
	if _, err := s.userRepo.BumpSessionVersion(ctx, userID); err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.InternalError(err)
	}
	return nil
}

// InvalidateSessions - "выйти на всех устройствах"
func (s *AuthServiceImpl) InvalidateSessions(ctx context.Context, userID string) error {
	return s.Logout(ctx, userID)
}

// VerifyEmail - подтверждение email одноразовым кодом
func (s *AuthServiceImpl) VerifyEmail(ctx context.Context, req *dto.VerifyEmailRequest) error {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.InternalError(err)
	}
	if user.IsEmailVerified {
		return apperrors.ErrEmailAlreadyVerified
	}

	code, err := s.codeRepo.FindValid(ctx, user.ID, models.PurposeEmailVerification, req.Code)
	if err != nil {
		if apperrors.Is(err, repositories.ErrCodeNotFound) {
			return apperrors.ErrInvalidOrExpiredCode
		}
		return apperrors.InternalError(err)
	}

	// Сначала статус, затем погашение: если запись статуса не удалась,
	// код остается пригодным для повторной попытки. Гонка двух запросов
	// безопасна, MarkEmailVerified идемпотентен
	if err := s.userRepo.MarkEmailVerified(ctx, user.ID); err != nil {
		return apperrors.InternalError(err)
	}

	if err := s.codeRepo.Consume(ctx, code.ID); err != nil && !apperrors.Is(err, repositories.ErrCodeNotFound) {
		// Аккаунт уже подтвержден, непогашенный код доживет до очистки
		logger.CtxWithError(ctx, "failed to consume verification code", err, "user_id", user.ID)
	}
	return nil
}

// ResendVerification повторно отправляет код подтверждения. Прежний
// код при этом гасится: активен только последний.
func (s *AuthServiceImpl) ResendVerification(ctx context.Context, userEmail string) error {
	user, err := s.userRepo.FindByEmail(ctx, userEmail)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.InternalError(err)
	}
	if user.IsEmailVerified {
		return apperrors.ErrEmailAlreadyVerified
	}

	if err := s.issueVerificationCode(ctx, user, models.PurposeEmailVerification); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

// RequestPasswordReset - запрос кода сброса пароля. Ответ не раскрывает,
// существует ли такой аккаунт.
func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, userEmail string) error {
	user, err := s.userRepo.FindByEmail(ctx, userEmail)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil
		}
		return apperrors.InternalError(err)
	}

	if err := s.issueVerificationCode(ctx, user, models.PurposePasswordReset); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

// ValidateResetCode проверяет код сброса без его погашения. Используется
// фронтендом перед показом формы нового пароля.
func (s *AuthServiceImpl) ValidateResetCode(ctx context.Context, userEmail, code string) error {
	user, err := s.userRepo.FindByEmail(ctx, userEmail)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrInvalidOrExpiredCode
		}
		return apperrors.InternalError(err)
	}

	if _, err := s.codeRepo.FindValid(ctx, user.ID, models.PurposePasswordReset, code); err != nil {
		if apperrors.Is(err, repositories.ErrCodeNotFound) {
			return apperrors.ErrInvalidOrExpiredCode
		}
		return apperrors.InternalError(err)
	}
	return nil
}

// ResetPassword - установка нового пароля по коду. Все сессии
// пользователя инвалидируются сменой пароля.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, req *dto.PasswordResetConfirm) error {
	if len(req.NewPassword) < 6 {
		return apperrors.ErrWeakPassword
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrInvalidOrExpiredCode
		}
		return apperrors.InternalError(err)
	}

	code, err := s.codeRepo.FindValid(ctx, user.ID, models.PurposePasswordReset, req.Code)
	if err != nil {
		if apperrors.Is(err, repositories.ErrCodeNotFound) {
			return apperrors.ErrInvalidOrExpiredCode
		}
		return apperrors.InternalError(err)
	}

	if err := s.codeRepo.Consume(ctx, code.ID); err != nil {
		if apperrors.Is(err, repositories.ErrCodeNotFound) {
			return apperrors.ErrInvalidOrExpiredCode
		}
		return apperrors.InternalError(err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.InternalError(err)
	}

	if err := s.userRepo.SetPassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

// ChangePassword - смена пароля аутентифицированным пользователем.
// Возвращает пользователя с новой версией сессии: вызывающий обязан
// выпустить свежий токен, текущий становится недействительным.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) (*models.User, error) {
	if len(req.NewPassword) < 6 {
		return nil, apperrors.ErrWeakPassword
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.InternalError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return nil, apperrors.ErrWrongCurrentPassword
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	if err := s.userRepo.SetPassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return nil, apperrors.InternalError(err)
	}

	// Перечитываем: SetPassword инкрементировал session_version
	fresh, err := s.userRepo.FindByID(ctx, user.ID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return fresh, nil
}

func (s *AuthServiceImpl) issueVerificationCode(ctx context.Context, user *models.User, purpose models.VerificationPurpose) error {
	code, err := generateCode()
	if err != nil {
		return err
	}

	ttl := emailCodeTTL
	if purpose == models.PurposePasswordReset {
		ttl = resetCodeTTL
	}

	record := &models.VerificationCode{
		UserID:    user.ID,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.codeRepo.Replace(ctx, record); err != nil {
		return err
	}

	// Письмо уходит в фоне: ответ клиенту не ждет SMTP, неудачная
	// отправка только логируется - код можно запросить повторно
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		var sendErr error
		switch purpose {
		case models.PurposePasswordReset:
			sendErr = s.emailProvider.SendPasswordResetCode(sendCtx, user.Email, user.Name, code)
		default:
			sendErr = s.emailProvider.SendVerificationCode(sendCtx, user.Email, user.Name, code)
		}
		if sendErr != nil {
			logger.CtxWithError(sendCtx, "failed to send verification email", sendErr,
				"user_id", user.ID, "purpose", string(purpose))
		}
	}()
	return nil
}

// generateCode возвращает 6 символов из криптографического ГСЧ
func generateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
