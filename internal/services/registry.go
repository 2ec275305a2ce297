package services

import (
	"time"

	"courierdesk_backend/internal/email"
	"courierdesk_backend/internal/ratelimit"
	"courierdesk_backend/internal/repositories"
)

// ServiceContainer содержит все сервисы приложения.
type ServiceContainer struct {
	TokenService TokenService
	AuthService  AuthService
	UserService  UserService
}

type ContainerDeps struct {
	UserRepo      repositories.UserRepository
	CodeRepo      repositories.VerificationCodeRepository
	Limiter       *ratelimit.Limiter
	EmailProvider email.Provider
	JWTSecret     string
	TokenTTL      time.Duration
}

func NewServiceContainer(deps ContainerDeps) *ServiceContainer {
	tokenService := NewTokenService(deps.JWTSecret, deps.TokenTTL, deps.UserRepo)
	authService := NewAuthService(deps.UserRepo, deps.CodeRepo, tokenService, deps.Limiter, deps.EmailProvider)
	userService := NewUserService(deps.UserRepo)

	return &ServiceContainer{
		TokenService: tokenService,
		AuthService:  authService,
		UserService:  userService,
	}
}
