package validator

import (
	"log"

	"courierdesk_backend/internal/models"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules регистрирует кастомные функции валидации.
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	mustRegister("is-user-role", validateUserRole)
	mustRegister("is-verification-purpose", validateVerificationPurpose)
}

func validateUserRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // пустые значения проверяет 'required'
	}

	switch models.UserRole(value) {
	case models.UserRoleNormal, models.UserRoleCorporate, models.UserRoleAdmin, models.UserRoleSuperAdmin:
		return true
	default:
		return false
	}
}

func validateVerificationPurpose(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}

	switch models.VerificationPurpose(value) {
	case models.PurposeEmailVerification, models.PurposePasswordReset:
		return true
	default:
		return false
	}
}
