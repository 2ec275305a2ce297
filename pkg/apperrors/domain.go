package apperrors

import (
	"fmt"
	"net/http"
)

/*
Этот файл содержит фабрики и предопределенные переменные
для ошибок домена аутентификации.
*/

// =========================================================================
// Фабричные ФУНКЦИИ
// =========================================================================

// ErrNotFound - фабрика для ошибки "не найдено" (404)
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

// ErrAlreadyExists - фабрика для ошибки "уже существует" (409)
func ErrAlreadyExists(err error) *AppError {
	return Wrap(err, CodeAlreadyExists, "resource", "Resource already exists", http.StatusConflict)
}

// ErrRateLimited - фабрика для 429 с таймингом повтора.
// retryAfter - в секундах, уходит и в тело, и в заголовок Retry-After.
func ErrRateLimited(retryAfter int64) *AppError {
	return New(
		CodeRateLimited,
		"auth",
		fmt.Sprintf("Too many login attempts. Try again in %d seconds", retryAfter),
		http.StatusTooManyRequests,
	).WithDetails(map[string]int64{"retry_after": retryAfter})
}

// =========================================================================
// Предопределенные ПЕРЕМЕННЫЕ
// =========================================================================

// ErrInvalidCredentials - единый ответ на "нет такого юзера" и "неверный пароль".
// Разделять их нельзя: ответ не должен раскрывать существование аккаунта.
var ErrInvalidCredentials = New(
	CodeInvalidCredentials,
	"auth",
	"Invalid credentials",
	http.StatusUnauthorized,
)

// ErrEmailNotVerified - логин до подтверждения email.
var ErrEmailNotVerified = New(
	CodeUnauthorized,
	"auth",
	"Email is not verified",
	http.StatusUnauthorized,
)

// ErrAccountInactive - аккаунт деактивирован администратором.
var ErrAccountInactive = New(
	CodeForbidden,
	"auth",
	"Account is deactivated",
	http.StatusForbidden,
)

// ErrUnauthenticated - общий 401 для защищенных маршрутов.
// Внутренняя причина (нет токена, битый токен, устаревшая сессия)
// наружу не уходит.
var ErrUnauthenticated = New(
	CodeUnauthorized,
	"auth",
	"Authentication required",
	http.StatusUnauthorized,
)

// ErrInsufficientPermissions - не-админ пытается выполнить админ-действие.
var ErrInsufficientPermissions = New(
	CodeForbidden,
	"auth",
	"Insufficient permissions",
	http.StatusForbidden,
)

// ErrInvalidOrExpiredCode - код верификации не совпал, истек или уже использован.
var ErrInvalidOrExpiredCode = New(
	CodeValidationFailed,
	"verification",
	"Invalid or expired verification code",
	http.StatusBadRequest,
)

// ErrEmailAlreadyVerified - повторный запрос кода для уже подтвержденного email.
var ErrEmailAlreadyVerified = New(
	CodeInvalidOperation,
	"verification",
	"Email is already verified",
	http.StatusBadRequest,
)

// ErrEmailAlreadyExists - регистрация на занятый email.
var ErrEmailAlreadyExists = New(
	CodeAlreadyExists,
	"auth",
	"Email already exists",
	http.StatusConflict,
)

// ErrWeakPassword - пароль короче минимума.
var ErrWeakPassword = New(
	CodeValidationFailed,
	"validation",
	"Password must be at least 6 characters long",
	http.StatusBadRequest,
)

// ErrWrongCurrentPassword - смена пароля с неверным текущим паролем.
var ErrWrongCurrentPassword = New(
	CodeValidationFailed,
	"auth",
	"Current password is incorrect",
	http.StatusBadRequest,
)

// ErrInvalidUserRole - недопустимая роль при регистрации.
var ErrInvalidUserRole = New(
	CodeInvalidOperation,
	"auth",
	"Invalid user role for this operation",
	http.StatusBadRequest,
)

// ErrUserNotFound - 404 там, где перечисление аккаунтов не играет роли
// (например, resend-verification по явному запросу UI).
var ErrUserNotFound = New(
	CodeNotFound,
	"auth",
	"User not found",
	http.StatusNotFound,
)
