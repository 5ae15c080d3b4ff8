package repositories

import (
	"context"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
)

type UserRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// Upsert mirrors an identity-provider record. A nil DeletedAt restores a
// previously deleted user.
func (r *UserRepo) Upsert(ctx context.Context, u *models.User) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, display_name, role, deleted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, users.email),
			display_name = COALESCE(EXCLUDED.display_name, users.display_name),
			role = EXCLUDED.role,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = now()
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.DisplayName, u.Role, u.DeletedAt).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT id, email, display_name, role, deleted_at, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}
