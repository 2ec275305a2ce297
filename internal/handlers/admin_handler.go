package handlers

import (
	"courierdesk_backend/internal/services"
	"courierdesk_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

// AdminHandler - управление учетными записями. Маршруты закрыты
// RequireRoles, сюда попадают только администраторы.
type AdminHandler struct {
	*BaseHandler
	userService services.UserService
}

func NewAdminHandler(base *BaseHandler, userService services.UserService) *AdminHandler {
	return &AdminHandler{
		BaseHandler: base,
		userService: userService,
	}
}

// SetUserStatus - активация или деактивация учетной записи.
// Деактивация отзывает все сессии пользователя.
func (h *AdminHandler) SetUserStatus(c *gin.Context) {
	actor, ok := h.RequireCurrentUser(c)
	if !ok {
		return
	}

	var req dto.AdminSetActiveRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	user, err := h.userService.SetUserActive(c.Request.Context(), actor, c.Param("id"), *req.IsActive)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.OK(c, "User status updated", user)
}

// ChangeUserRole - смена роли пользователя
func (h *AdminHandler) ChangeUserRole(c *gin.Context) {
	actor, ok := h.RequireCurrentUser(c)
	if !ok {
		return
	}

	var req dto.AdminChangeRoleRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	user, err := h.userService.ChangeUserRole(c.Request.Context(), actor, c.Param("id"), req.Role)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	h.OK(c, "User role updated", user)
}
