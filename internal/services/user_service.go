package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService keeps the local mirror of identity-provider users. The
// workflow only needs to know a user exists and is not deleted.
type UserService struct {
	users repositories.UserRepository
	log   *zap.Logger
}

func NewUserService(users repositories.UserRepository, log *zap.Logger) *UserService {
	return &UserService{users: users, log: log}
}

type SyncUserInput struct {
	ID          uuid.UUID
	Email       *string
	DisplayName *string
	Role        string
	Deleted     bool
	DeletedAt   *time.Time
}

func (s *UserService) SyncUser(ctx context.Context, in SyncUserInput) (*models.User, error) {
	if in.ID == uuid.Nil {
		return nil, validation("invalid_user_id", "user id is required")
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if !models.IsValidUserRole(role) {
		return nil, validation("invalid_role", "unknown user role %q", in.Role)
	}

	u := &models.User{
		ID:          in.ID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Role:        role,
	}
	if in.Deleted {
		deletedAt := time.Now().UTC()
		if in.DeletedAt != nil {
			deletedAt = *in.DeletedAt
		}
		u.DeletedAt = &deletedAt
	}

	if err := s.users.Upsert(ctx, u); err != nil {
		s.log.Error("failed to sync user", zap.String("user_id", in.ID.String()), zap.Error(err))
		return nil, err
	}
	s.log.Info("user synced",
		zap.String("user_id", u.ID.String()),
		zap.String("role", u.Role),
		zap.Bool("deleted", u.IsDeleted()),
	)
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound("user")
	}
	return u, err
}
