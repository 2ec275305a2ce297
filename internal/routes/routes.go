package routes

import (
	"courierdesk_backend/internal/handlers"
	"courierdesk_backend/internal/middleware"
	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все HTTP-маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	tokenService services.TokenService,
	cookieName string,
) {
	ginRouter.GET("/health", appHandlers.HealthHandler.Check)

	api := ginRouter.Group("/api/v1")

	auth := api.Group("/auth")
	{
		h := appHandlers.AuthHandler
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/verify", h.Verify)
		auth.POST("/email/verify", h.VerifyEmail)
		auth.POST("/email/resend-verification", h.ResendVerification)
		auth.POST("/password/forgot", h.RequestPasswordReset)
		auth.POST("/password/validate/:code", h.ValidateResetCode)
		auth.POST("/password/reset", h.ResetPassword)
	}

	authed := api.Group("/auth")
	authed.Use(middleware.AuthMiddleware(tokenService, cookieName))
	{
		h := appHandlers.AuthHandler
		authed.GET("/me", h.Me)
		authed.POST("/logout", h.Logout)
		authed.POST("/invalidate-sessions", h.InvalidateSessions)
		authed.POST("/password/change", h.ChangePassword)
	}

	admin := api.Group("/admin")
	admin.Use(
		middleware.AuthMiddleware(tokenService, cookieName),
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	{
		h := appHandlers.AdminHandler
		admin.PATCH("/users/:id/status", h.SetUserStatus)
		admin.PATCH("/users/:id/role", h.ChangeUserRole)
	}
}
