package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/repositories"

	"github.com/golang-jwt/jwt/v5"
)

// Внутренние теги отказа верификации. Наружу, кроме диагностического
// эндпоинта, все они сворачиваются в общий 401.
var (
	ErrNoToken             = errors.New("no token provided")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrUserAccountNotFound = errors.New("token subject not found")
	ErrSessionInvalidated  = errors.New("session has been invalidated")
	ErrStalePassword       = errors.New("password changed after token was issued")
)

// Claims - полезная нагрузка токена. Роль в claims носит справочный
// характер: авторизация всегда использует свежую роль из БД.
type Claims struct {
	UserID         string          `json:"uid"`
	Email          string          `json:"email"`
	Role           models.UserRole `json:"role"`
	SessionVersion int64           `json:"sv"`
	jwt.RegisteredClaims
}

type TokenService interface {
	// Issue выпускает токен, привязанный к текущему session_version
	// пользователя.
	Issue(user *models.User) (string, error)

	// Verify проверяет подпись и срок токена, затем сверяет его с
	// актуальным состоянием пользователя. Возвращает пользователя,
	// прочитанного из БД, а не из claims.
	Verify(ctx context.Context, tokenString string) (*models.User, *Claims, error)
}

// defaultStoreTimeout - бюджет на чтение пользователя при верификации.
// Зависший хранилище-вызов не должен держать запрос дольше этого срока.
const defaultStoreTimeout = 2 * time.Second

type TokenServiceImpl struct {
	secret       []byte
	ttl          time.Duration
	userRepo     repositories.UserRepository
	storeTimeout time.Duration
}

func NewTokenService(secret string, ttl time.Duration, userRepo repositories.UserRepository) TokenService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenServiceImpl{
		secret:       []byte(secret),
		ttl:          ttl,
		userRepo:     userRepo,
		storeTimeout: defaultStoreTimeout,
	}
}

func (s *TokenServiceImpl) Issue(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           user.Role,
		SessionVersion: user.SessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenServiceImpl) Verify(ctx context.Context, tokenString string) (*models.User, *Claims, error) {
	if tokenString == "" {
		return nil, nil, ErrNoToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// Метод подписи зафиксирован: подмена alg отклоняется
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil, ErrInvalidToken
	}

	timeout := s.storeTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user, err := s.userRepo.FindByID(loadCtx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, nil, ErrUserAccountNotFound
		}
		return nil, nil, fmt.Errorf("load token subject: %w", err)
	}

	// Токен старой версии сессии отозван logout'ом или "выйти везде"
	if claims.SessionVersion != user.SessionVersion {
		return nil, claims, ErrSessionInvalidated
	}

	// Токен, выпущенный до смены пароля, недействителен даже при
	// совпадении версии сессии. iat хранится с точностью до секунды,
	// сравниваем на той же точности
	if user.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
		return nil, claims, ErrStalePassword
	}

	return user, claims, nil
}
