package dto

import (
	"time"

	"courierdesk_backend/internal/models"
)

// RegisterRequest - запрос регистрации
type RegisterRequest struct {
	Email    string          `json:"email" binding:"required,email"`
	Password string          `json:"password" binding:"required,min=6"`
	Name     string          `json:"name" binding:"required"`
	Role     models.UserRole `json:"role,omitempty" binding:"omitempty,oneof=normal corporate"`
}

// LoginRequest - запрос входа
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// VerifyEmailRequest - запрос подтверждения email
type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6"`
}

// ResendVerificationRequest - повторная отправка кода подтверждения
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ValidateResetCodeRequest - предварительная проверка кода сброса
type ValidateResetCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetRequest - запрос сброса пароля
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetConfirm - подтверждение сброса пароля
type PasswordResetConfirm struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required,len=6"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePasswordRequest - смена пароля аутентифицированным пользователем
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

// AdminSetActiveRequest - включение/выключение учетной записи админом
type AdminSetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// AdminChangeRoleRequest - смена роли пользователя админом
type AdminChangeRoleRequest struct {
	Role models.UserRole `json:"role" binding:"required,oneof=normal corporate admin super_admin"`
}

// UserResponse - публичное представление пользователя
type UserResponse struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	Role            models.UserRole `json:"role"`
	IsEmailVerified bool            `json:"is_email_verified"`
	IsActive        bool            `json:"is_active"`
	LastLogin       *time.Time      `json:"last_login,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// LoginResponse - результат входа: токен уходит в cookie, в теле
// возвращаем только пользователя
type LoginResponse struct {
	User  *UserResponse `json:"user"`
	Token string        `json:"-"`
}

func NewUserResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		IsEmailVerified: u.IsEmailVerified,
		IsActive:        u.IsActive,
		LastLogin:       u.LastLogin,
		CreatedAt:       u.CreatedAt,
	}
}
