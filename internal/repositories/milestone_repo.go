package repositories

import (
	"context"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type MilestoneRepo struct {
	db DBTX
}

func NewMilestoneRepo(db DBTX) *MilestoneRepo {
	return &MilestoneRepo{db: db}
}

const milestoneColumns = `id, contract_id, title, description, amount, due_date, order_index,
		       status, completed_date, created_at, updated_at`

func scanMilestone(row pgx.Row, m *models.Milestone) error {
	return row.Scan(&m.ID, &m.ContractID, &m.Title, &m.Description, &m.Amount, &m.DueDate, &m.OrderIndex,
		&m.Status, &m.CompletedDate, &m.CreatedAt, &m.UpdatedAt)
}

func (r *MilestoneRepo) Create(ctx context.Context, m *models.Milestone) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO milestones (contract_id, title, description, amount, due_date, order_index, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, m.ContractID, m.Title, m.Description, m.Amount, m.DueDate, m.OrderIndex, m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return mapErr(err)
}

func (r *MilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var m models.Milestone
	err := scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id), &m)
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *MilestoneRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.Milestone, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE contract_id = $1
		ORDER BY due_date ASC NULLS LAST, order_index ASC, created_at ASC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := []models.Milestone{}
	for rows.Next() {
		var m models.Milestone
		if err := scanMilestone(rows, &m); err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

func (r *MilestoneRepo) UpdateDetails(ctx context.Context, m *models.Milestone) error {
	err := r.db.QueryRow(ctx, `
		UPDATE milestones
		SET title = $1, description = $2, amount = $3, due_date = $4, order_index = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`, m.Title, m.Description, m.Amount, m.DueDate, m.OrderIndex, m.ID).Scan(&m.UpdatedAt)
	return mapErr(err)
}

func (r *MilestoneRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, completedDate *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE milestones
		SET status = $1, completed_date = COALESCE($2, completed_date), updated_at = now()
		WHERE id = $3 AND status = $4
	`, to, completedDate, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *MilestoneRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM milestones WHERE id = $1 AND status <> 'PAID'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MilestoneRepo) SumAmounts(ctx context.Context, contractID uuid.UUID, excludeID *uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM milestones
		WHERE contract_id = $1 AND ($2::uuid IS NULL OR id <> $2)
	`, contractID, excludeID).Scan(&sum)
	return sum, err
}
