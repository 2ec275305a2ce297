package models

import "time"

// VerificationCode - одноразовый код, привязанный к пользователю и цели.
// На пару (user, purpose) активен максимум один код: создание нового
// удаляет предыдущие. Истекшие коды физически вычищает cleanup worker.
type VerificationCode struct {
	BaseModel
	UserID    string              `gorm:"type:uuid;not null;index:idx_codes_user_purpose,priority:1" json:"user_id"`
	Purpose   VerificationPurpose `gorm:"type:varchar(30);not null;index:idx_codes_user_purpose,priority:2" json:"purpose"`
	Code      string              `gorm:"type:varchar(6);not null" json:"-"`
	ExpiresAt time.Time           `gorm:"not null" json:"expires_at"`
}
