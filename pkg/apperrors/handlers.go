package apperrors

import (
	"strconv"

	"courierdesk_backend/internal/logger"

	"github.com/gin-gonic/gin"
)

// ErrorResponse - стандартный ответ об ошибке
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *AppError `json:"error"`
}

// HandleError - основная логика обработки ошибок для Gin.
// Любая не-AppError ошибка схлопывается в generic 500: сырые ошибки
// драйверов и стеки не пересекают границу HTTP.
func HandleError(c *gin.Context, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		appErr = InternalError(err)
	}

	if appErr.HTTPCode >= 500 {
		logger.CtxError(c.Request.Context(), "Server error",
			"error", appErr.Error(),
			"path", c.Request.URL.Path,
		)
		// Наружу уходит только generic сообщение
		appErr = New(appErr.Code, appErr.Domain, "Internal server error", appErr.HTTPCode)
	}

	if appErr.Code == CodeRateLimited {
		if details, ok := appErr.Details.(map[string]int64); ok {
			c.Header("Retry-After", strconv.FormatInt(details["retry_after"], 10))
		}
	}

	c.JSON(appErr.HTTPCode, ErrorResponse{Success: false, Error: appErr})
}

// AsAppError - пытается преобразовать error в *AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
