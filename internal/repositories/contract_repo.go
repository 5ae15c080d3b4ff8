package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ContractRepo struct {
	db DBTX
}

func NewContractRepo(db DBTX) *ContractRepo {
	return &ContractRepo{db: db}
}

const contractColumns = `id, project_id, proposal_id, client_id, freelancer_id, status,
		       total_amount, currency, start_date, end_date, created_at, updated_at`

func scanContract(row pgx.Row, c *models.Contract) error {
	return row.Scan(&c.ID, &c.ProjectID, &c.ProposalID, &c.ClientID, &c.FreelancerID, &c.Status,
		&c.TotalAmount, &c.Currency, &c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ContractRepo) Create(ctx context.Context, c *models.Contract) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO contracts (project_id, proposal_id, client_id, freelancer_id, status, total_amount, currency, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, c.ProjectID, c.ProposalID, c.ClientID, c.FreelancerID, c.Status, c.TotalAmount, c.Currency, c.StartDate, c.EndDate,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapErr(err)
}

func (r *ContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	err := scanContract(r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id), &c)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *ContractRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	err := scanContract(r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1 FOR UPDATE`, id), &c)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *ContractRepo) GetByProposalID(ctx context.Context, proposalID string) (*models.Contract, error) {
	var c models.Contract
	err := scanContract(r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE proposal_id = $1`, proposalID), &c)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *ContractRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE contracts SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *ContractRepo) List(ctx context.Context, f ContractFilter) ([]models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.PartyID != nil {
		where = append(where, fmt.Sprintf("(client_id = $%d OR freelancer_id = $%d)", argIdx, argIdx))
		args = append(args, *f.PartyID)
		argIdx++
	}
	if f.ClientID != nil {
		where = append(where, fmt.Sprintf("client_id = $%d", argIdx))
		args = append(args, *f.ClientID)
		argIdx++
	}
	if f.FreelancerID != nil {
		where = append(where, fmt.Sprintf("freelancer_id = $%d", argIdx))
		args = append(args, *f.FreelancerID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, NormalizeLimit(f.Limit), max(f.Offset, 0))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contracts := []models.Contract{}
	for rows.Next() {
		var c models.Contract
		if err := scanContract(rows, &c); err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}
