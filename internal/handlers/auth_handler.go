package handlers

import (
	"net/http"
	"time"

	"courierdesk_backend/internal/ratelimit"
	"courierdesk_backend/internal/services"
	"courierdesk_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

// CookieSettings - параметры сессионной cookie
type CookieSettings struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

type AuthHandler struct {
	*BaseHandler
	authService  services.AuthService
	tokenService services.TokenService
	limiter      *ratelimit.Limiter
	cookie       CookieSettings
}

func NewAuthHandler(
	base *BaseHandler,
	authService services.AuthService,
	tokenService services.TokenService,
	limiter *ratelimit.Limiter,
	cookie CookieSettings,
) *AuthHandler {
	return &AuthHandler{
		BaseHandler:  base,
		authService:  authService,
		tokenService: tokenService,
		limiter:      limiter,
		cookie:       cookie,
	}
}

// setAuthCookie выставляет HTTP-only сессионную cookie. SameSite=Strict:
// токен не уходит в кросс-сайтовых запросах.
func (h *AuthHandler) setAuthCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, token, int(h.cookie.MaxAge.Seconds()), "/", h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) clearAuthCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
}

// Register - регистрация нового пользователя
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.Created(c, "Registration successful. Please check your email to verify your account.", user)
}

// Login - вход. Токен уходит только в cookie, тело ответа содержит
// пользователя.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP())

	// Заголовки лимитера отражают состояние после попытки
	if verdict, vErr := h.limiter.Check(c.Request.Context(), c.ClientIP(), req.Email); vErr == nil {
		SetRateLimitHeaders(c, verdict)
	}

	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.setAuthCookie(c, resp.Token)
	h.OK(c, "Login successful", resp.User)
}

// Logout - выход: версия сессии растет, все выпущенные токены
// пользователя отзываются, cookie очищается.
func (h *AuthHandler) Logout(c *gin.Context) {
	user, ok := h.RequireCurrentUser(c)
	if !ok {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), user.ID); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.clearAuthCookie(c)
	h.OK(c, "Logged out", nil)
}

// InvalidateSessions - "выйти на всех устройствах"
func (h *AuthHandler) InvalidateSessions(c *gin.Context) {
	user, ok := h.RequireCurrentUser(c)
	if !ok {
		return
	}

	if err := h.authService.InvalidateSessions(c.Request.Context(), user.ID); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.clearAuthCookie(c)
	h.OK(c, "All sessions invalidated", nil)
}

// Verify - диагностика токена. Единственный эндпоинт, который
// различает причины отказа; защищенные маршруты отвечают общим 401.
func (h *AuthHandler) Verify(c *gin.Context) {
	tokenStr, err := c.Cookie(h.cookie.Name)
	if err != nil {
		h.OK(c, "No active session", gin.H{"authenticated": false, "reason": "no_token"})
		return
	}

	user, _, err := h.tokenService.Verify(c.Request.Context(), tokenStr)
	if err != nil {
		h.OK(c, "Session is not valid", gin.H{"authenticated": false, "reason": verifyReason(err)})
		return
	}

	h.OK(c, "Session is valid", gin.H{"authenticated": true, "user": dto.NewUserResponse(user)})
}

func verifyReason(err error) string {
	switch err {
	case services.ErrNoToken:
		return "no_token"
	case services.ErrInvalidToken:
		return "invalid_token"
	case services.ErrUserAccountNotFound:
		return "user_not_found"
	case services.ErrSessionInvalidated:
		return "session_invalidated"
	case services.ErrStalePassword:
		return "password_changed"
	default:
		return "invalid_token"
	}
}

// Me - текущий пользователь
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := h.RequireCurrentUser(c)
	if !ok {
		return
	}
	h.OK(c, "", dto.NewUserResponse(user))
}

// VerifyEmail - подтверждение email одноразовым кодом
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.OK(c, "Email verified", nil)
}

// ResendVerification - повторная отправка кода подтверждения
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req dto.ResendVerificationRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	if err := h.authService.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.OK(c, "If the account exists, a verification code has been sent", nil)
}

// RequestPasswordReset - запрос кода сброса пароля
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.PasswordResetRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.OK(c, "If the account exists, a password reset code has been sent", nil)
}

// ValidateResetCode - проверка кода сброса без погашения. Проверяется
// сам код вместе с email, а не id записи: знание id не должно
// подменять знание секрета.
func (h *AuthHandler) ValidateResetCode(c *gin.Context) {
	code := c.Param("code")

	var req dto.ValidateResetCodeRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	if err := h.authService.ValidateResetCode(c.Request.Context(), req.Email, code); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.OK(c, "Code is valid", nil)
}

// ResetPassword - установка нового пароля по коду
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.PasswordResetConfirm
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.OK(c, "Password has been reset. Please log in with your new password.", nil)
}

// ChangePassword - смена пароля аутентифицированным пользователем.
// Старые токены отзываются; в ответе выставляется свежая cookie, чтобы
// текущее устройство осталось в системе.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user, ok := h.RequireCurrentUser(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	fresh, err := h.authService.ChangePassword(c.Request.Context(), user.ID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	token, err := h.tokenService.Issue(fresh)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.setAuthCookie(c, token)
	h.OK(c, "Password changed", nil)
}
