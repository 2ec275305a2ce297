package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courierdesk_backend/internal/logger"
	"courierdesk_backend/internal/middleware"
	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/ratelimit"
	"courierdesk_backend/internal/services"
	"courierdesk_backend/internal/testutil"
	"courierdesk_backend/internal/validator"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookieName = "auth-token"

type testServer struct {
	router *gin.Engine
	users  *testutil.MemUserRepo
	email  *testutil.CapturingEmailProvider
	mr     *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Init("test")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	users := testutil.NewMemUserRepo()
	codes := testutil.NewMemCodeRepo()
	provider := &testutil.CapturingEmailProvider{}
	limiter := ratelimit.New(rdb, ratelimit.Policy{MaxAttempts: 3, Window: 15 * time.Minute})

	container := services.NewServiceContainer(services.ContainerDeps{
		UserRepo:      users,
		CodeRepo:      codes,
		Limiter:       limiter,
		EmailProvider: provider,
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
	})

	base := NewBaseHandler(validator.New())
	authHandler := NewAuthHandler(base, container.AuthService, container.TokenService, limiter, CookieSettings{
		Name:   testCookieName,
		Secure: false,
		MaxAge: time.Hour,
	})

	router := gin.New()
	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/verify", authHandler.Verify)
	auth.POST("/email/verify", authHandler.VerifyEmail)
	auth.POST("/email/resend-verification", authHandler.ResendVerification)
	auth.POST("/password/forgot", authHandler.RequestPasswordReset)
	auth.POST("/password/validate/:code", authHandler.ValidateResetCode)
	auth.POST("/password/reset", authHandler.ResetPassword)

	authed := api.Group("/auth")
	authed.Use(middleware.AuthMiddleware(container.TokenService, testCookieName))
	authed.GET("/me", authHandler.Me)
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/invalidate-sessions", authHandler.InvalidateSessions)
	authed.POST("/password/change", authHandler.ChangePassword)

	adminHandler := NewAdminHandler(base, container.UserService)
	admin := api.Group("/admin")
	admin.Use(
		middleware.AuthMiddleware(container.TokenService, testCookieName),
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.PATCH("/users/:id/status", adminHandler.SetUserStatus)
	admin.PATCH("/users/:id/role", adminHandler.ChangeUserRole)

	return &testServer{router: router, users: users, email: provider, mr: mr}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.1.1.1:1234"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) registerVerified(t *testing.T, email, password string) {
	t.Helper()
	sentBefore := s.email.SentCount()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"email": email, "password": password, "name": "Test User",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	// Письмо уходит в фоне; дожидаемся его, чтобы последующие отправки
	// не гонялись с этой за LastCode.
	s.email.WaitSent(t, sentBefore+1)

	u, err := s.users.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NoError(t, s.users.MarkEmailVerified(context.Background(), u.ID))
}

func (s *testServer) login(t *testing.T, email, password string) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": email, "password": password}, nil)
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookieName && c.Value != "" {
			return w, c
		}
	}
	return w, nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLoginSetsHTTPOnlyCookie(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "cookie@example.com", "password1")

	w, cookie := s.login(t, "cookie@example.com", "password1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, cookie)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	// Токен не утекает в тело ответа
	assert.NotContains(t, w.Body.String(), cookie.Value)
}

func TestLoginInvalidCredentials(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "user@example.com", "password1")

	w, cookie := s.login(t, "user@example.com", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, cookie)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
}

func TestLoginRateLimitHeaders(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "429@example.com", "password1")

	var w *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w, _ = s.login(t, "429@example.com", "wrong")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w, _ = s.login(t, "429@example.com", "password1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
}

func TestMeRequiresCookie(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeReturnsCurrentUser(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "me@example.com", "password1")
	_, cookie := s.login(t, "me@example.com", "password1")
	require.NotNil(t, cookie)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "me@example.com", data["email"])
}

func TestCookieReplayAfterLogout(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "replay@example.com", "password1")
	_, cookie := s.login(t, "replay@example.com", "password1")
	require.NotNil(t, cookie)

	w := s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	// Logout очищает cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookieName {
			assert.Empty(t, c.Value)
			assert.Less(t, c.MaxAge, 0)
		}
	}

	// Сохраненная копия токена больше не работает
	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSecondLoginInvalidatesFirstCookie(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "single@example.com", "password1")

	_, first := s.login(t, "single@example.com", "password1")
	require.NotNil(t, first)
	_, second := s.login(t, "single@example.com", "password1")
	require.NotNil(t, second)

	// Вход с нового устройства отзывает прежнюю сессию
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, first).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, second).Code)
}

func TestInvalidateSessions(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "multi@example.com", "password1")

	_, cookie := s.login(t, "multi@example.com", "password1")
	require.NotNil(t, cookie)

	w := s.do(t, http.MethodPost, "/api/v1/auth/invalidate-sessions", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookie).Code)
}

func TestVerifyEndpointExplainsReason(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "diag@example.com", "password1")

	// Без cookie
	w := s.do(t, http.MethodPost, "/api/v1/auth/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["authenticated"])
	assert.Equal(t, "no_token", data["reason"])

	// Мусорный токен
	w = s.do(t, http.MethodPost, "/api/v1/auth/verify", nil, &http.Cookie{Name: testCookieName, Value: "garbage"})
	data = decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "invalid_token", data["reason"])

	// Живая сессия
	_, cookie := s.login(t, "diag@example.com", "password1")
	require.NotNil(t, cookie)
	w = s.do(t, http.MethodPost, "/api/v1/auth/verify", nil, cookie)
	data = decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["authenticated"])

	// Отозванная сессия различима только здесь
	s.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookie)
	w = s.do(t, http.MethodPost, "/api/v1/auth/verify", nil, cookie)
	data = decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "session_invalidated", data["reason"])
}

func TestEmailVerificationFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"email": "flow@example.com", "password": "password1", "name": "Flow",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Вход до подтверждения отклоняется
	w, _ = s.login(t, "flow@example.com", "password1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.email.WaitSent(t, 1)
	code := s.email.LastCode()
	require.Len(t, code, 6)
	w = s.do(t, http.MethodPost, "/api/v1/auth/email/verify", gin.H{
		"email": "flow@example.com", "code": code,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, cookie := s.login(t, "flow@example.com", "password1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, cookie)
}

func TestPasswordResetFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "reset@example.com", "oldpassword")

	w := s.do(t, http.MethodPost, "/api/v1/auth/password/forgot", gin.H{"email": "reset@example.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	s.email.WaitSent(t, 2)
	code := s.email.LastCode()
	require.Len(t, code, 6)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/auth/password/validate/%s", code), gin.H{"email": "reset@example.com"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/password/reset", gin.H{
		"email": "reset@example.com", "code": code, "new_password": "newpassword",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.login(t, "reset@example.com", "oldpassword")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, cookie := s.login(t, "reset@example.com", "newpassword")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, cookie)
}

func TestChangePasswordKeepsCurrentDevice(t *testing.T) {
	s := newTestServer(t)
	s.registerVerified(t, "keep@example.com", "oldpassword")
	_, oldCookie := s.login(t, "keep@example.com", "oldpassword")
	require.NotNil(t, oldCookie)

	w := s.do(t, http.MethodPost, "/api/v1/auth/password/change", gin.H{
		"current_password": "oldpassword", "new_password": "newpassword",
	}, oldCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var newCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookieName && c.Value != "" {
			newCookie = c
		}
	}
	require.NotNil(t, newCookie)

	// Старый токен отозван, свежая cookie работает
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, oldCookie).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/auth/me", nil, newCookie).Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"email": "not-an-email", "password": "password1", "name": "X",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"email": "short@example.com", "password": "123", "name": "X",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
