package services

import (
	"context"

	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/repositories"
	"courierdesk_backend/internal/services/dto"
	"courierdesk_backend/pkg/apperrors"
)

// UserService - административное управление учетными записями.
type UserService interface {
	// SetUserActive включает или выключает учетную запись. Деактивация
	// отзывает все сессии пользователя.
	SetUserActive(ctx context.Context, actor *models.User, userID string, active bool) (*dto.UserResponse, error)

	// ChangeUserRole переводит пользователя на другую роль.
	ChangeUserRole(ctx context.Context, actor *models.User, userID string, role models.UserRole) (*dto.UserResponse, error)
}

type UserServiceImpl struct {
	userRepo repositories.UserRepository
}

func NewUserService(userRepo repositories.UserRepository) UserService {
	return &UserServiceImpl{userRepo: userRepo}
}

func (s *UserServiceImpl) SetUserActive(ctx context.Context, actor *models.User, userID string, active bool) (*dto.UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.InternalError(err)
	}

	// Административные аккаунты трогает только super_admin: админы не
	// могут заблокировать друг друга
	if user.Role.IsAdmin() && actor.Role != models.UserRoleSuperAdmin {
		return nil, apperrors.ErrInsufficientPermissions
	}

	if err := s.userRepo.SetActive(ctx, userID, active); err != nil {
		return nil, apperrors.InternalError(err)
	}

	if !active {
		// Деактивированный пользователь не должен доживать до истечения
		// токена: версия сессии растет, токены отзываются
		if _, err := s.userRepo.BumpSessionVersion(ctx, userID); err != nil {
			return nil, apperrors.InternalError(err)
		}
	}

	fresh, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewUserResponse(fresh), nil
}

func (s *UserServiceImpl) ChangeUserRole(ctx context.Context, actor *models.User, userID string, role models.UserRole) (*dto.UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.InternalError(err)
	}

	// Выдать или отнять админскую роль может только super_admin
	if (role.IsAdmin() || user.Role.IsAdmin()) && actor.Role != models.UserRoleSuperAdmin {
		return nil, apperrors.ErrInsufficientPermissions
	}

	user.Role = role
	if err := s.userRepo.Update(ctx, user); err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.InternalError(err)
	}

	fresh, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewUserResponse(fresh), nil
}
