package models

type UserRole string
type VerificationPurpose string

const (
	UserRoleNormal     UserRole = "normal"
	UserRoleCorporate  UserRole = "corporate"
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperAdmin UserRole = "super_admin"

	PurposeEmailVerification VerificationPurpose = "email_verification"
	PurposePasswordReset     VerificationPurpose = "password_reset"
)

// IsAdmin - admin и super_admin проходят админ-проверки одинаково
func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin || r == UserRoleSuperAdmin
}
