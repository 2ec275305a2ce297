package repositories

import (
	"context"
	"errors"
	"time"

	"courierdesk_backend/internal/models"

	"gorm.io/gorm"
)

var ErrCodeNotFound = errors.New("verification code not found")

type VerificationCodeRepository interface {
	// Replace удаляет все коды той же цели для пользователя и создает
	// новый в одной транзакции: на пару (user, purpose) живет максимум
	// один активный код.
	Replace(ctx context.Context, code *models.VerificationCode) error

	// FindValid возвращает код только при полном совпадении
	// (user, purpose, code) и неистекшем сроке.
	FindValid(ctx context.Context, userID string, purpose models.VerificationPurpose, code string) (*models.VerificationCode, error)

	// Consume удаляет код. Возвращает ErrCodeNotFound, если код уже был
	// использован конкурирующим запросом - повторное употребление
	// исключено на уровне БД.
	Consume(ctx context.Context, id string) error

	PurgeExpired(ctx context.Context) (int64, error)
}

type VerificationCodeRepositoryImpl struct {
	db *gorm.DB
}

func NewVerificationCodeRepository(db *gorm.DB) VerificationCodeRepository {
	return &VerificationCodeRepositoryImpl{db: db}
}

func (r *VerificationCodeRepositoryImpl) Replace(ctx context.Context, code *models.VerificationCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ?", code.UserID, code.Purpose).
			Delete(&models.VerificationCode{}).Error; err != nil {
			return err
		}
		return tx.Create(code).Error
	})
}

func (r *VerificationCodeRepositoryImpl) FindValid(ctx context.Context, userID string, purpose models.VerificationPurpose, code string) (*models.VerificationCode, error) {
	var record models.VerificationCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ? AND code = ? AND expires_at > ?", userID, purpose, code, time.Now()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *VerificationCodeRepositoryImpl) Consume(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.VerificationCode{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func (r *VerificationCodeRepositoryImpl) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.VerificationCode{})
	return result.RowsAffected, result.Error
}
