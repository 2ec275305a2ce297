package models

import "time"

type User struct {
	BaseModel
	Email        string   `gorm:"uniqueIndex;not null" json:"email"`
	Name         string   `gorm:"type:varchar(100)" json:"name"`
	PasswordHash string   `gorm:"not null" json:"-"`
	Role         UserRole `gorm:"type:varchar(20);default:'normal'" json:"role"`

	IsEmailVerified bool `gorm:"default:false" json:"is_email_verified"`
	IsActive        bool `gorm:"default:true" json:"is_active"`

	// Контроль сессий. SessionVersion монотонно растет: logout, смена
	// пароля и "выйти везде" увеличивают его, мгновенно отзывая все
	// ранее выпущенные токены без revocation-списка.
	SessionVersion    int64      `gorm:"not null;default:0" json:"-"`
	PasswordChangedAt *time.Time `json:"-"`
	LastLogin         *time.Time `json:"last_login,omitempty"`

	// Поля социального логина. Зарезервированы, ни один flow их не использует.
	Provider   string `gorm:"type:varchar(30)" json:"-"`
	ProviderID string `gorm:"type:varchar(100)" json:"-"`
}
