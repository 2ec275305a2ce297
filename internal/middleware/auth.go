package middleware

import (
	"courierdesk_backend/internal/logger"
	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/services"
	"courierdesk_backend/pkg/apperrors"
	"courierdesk_backend/pkg/contextkeys"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware - проверка токена из cookie. Любая причина отказа
// (нет cookie, битый токен, отозванная сессия, устаревший пароль)
// наружу выглядит одинаковым 401.
func AuthMiddleware(tokenService services.TokenService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(cookieName)
		if err != nil {
			abortUnauthenticated(c)
			return
		}

		user, _, err := tokenService.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			logger.CtxDebug(c.Request.Context(), "token verification failed", "reason", err.Error())
			abortUnauthenticated(c)
			return
		}

		// В контекст кладем свежего пользователя из БД: роль и статус
		// берутся из него, а не из claims
		c.Set(string(contextkeys.CurrentUserKey), user)
		ctx := logger.WithUserID(c.Request.Context(), user.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context) {
	apperrors.HandleError(c, apperrors.ErrUnauthenticated)
	c.Abort()
}

// RequireRoles пропускает только перечисленные роли. super_admin
// проходит любую проверку.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abortUnauthenticated(c)
			return
		}

		if user.Role == models.UserRoleSuperAdmin {
			c.Next()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		apperrors.HandleError(c, apperrors.ErrInsufficientPermissions)
		c.Abort()
	}
}

// CurrentUser возвращает пользователя, сохраненного AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	val, exists := c.Get(string(contextkeys.CurrentUserKey))
	if !exists {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok
}
