package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PaymentRequestRepo struct {
	db DBTX
}

func NewPaymentRequestRepo(db DBTX) *PaymentRequestRepo {
	return &PaymentRequestRepo{db: db}
}

const paymentRequestColumns = `pr.id, pr.contract_id, pr.milestone_id, pr.amount, pr.currency, pr.description,
		       pr.status, pr.requested_at, pr.approved_at, pr.rejected_at, pr.rejection_reason`

func scanPaymentRequest(row pgx.Row, r *models.PaymentRequest) error {
	return row.Scan(&r.ID, &r.ContractID, &r.MilestoneID, &r.Amount, &r.Currency, &r.Description,
		&r.Status, &r.RequestedAt, &r.ApprovedAt, &r.RejectedAt, &r.RejectionReason)
}

func (r *PaymentRequestRepo) Create(ctx context.Context, pr *models.PaymentRequest) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_requests (contract_id, milestone_id, amount, currency, description, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, requested_at
	`, pr.ContractID, pr.MilestoneID, pr.Amount, pr.Currency, pr.Description, pr.Status,
	).Scan(&pr.ID, &pr.RequestedAt)
	return mapErr(err)
}

func (r *PaymentRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	var pr models.PaymentRequest
	err := scanPaymentRequest(r.db.QueryRow(ctx, `
		SELECT `+paymentRequestColumns+` FROM payment_requests pr WHERE pr.id = $1
	`, id), &pr)
	if err != nil {
		return nil, mapErr(err)
	}
	return &pr, nil
}

func (r *PaymentRequestRepo) List(ctx context.Context, f PaymentRequestFilter) ([]models.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests pr`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.PartyID != nil {
		query += ` JOIN contracts c ON c.id = pr.contract_id `
		where = append(where, fmt.Sprintf("(c.client_id = $%d OR c.freelancer_id = $%d)", argIdx, argIdx))
		args = append(args, *f.PartyID)
		argIdx++
	}
	if f.ContractID != nil {
		where = append(where, fmt.Sprintf("pr.contract_id = $%d", argIdx))
		args = append(args, *f.ContractID)
		argIdx++
	}
	if f.MilestoneID != nil {
		where = append(where, fmt.Sprintf("pr.milestone_id = $%d", argIdx))
		args = append(args, *f.MilestoneID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("pr.status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY pr.requested_at DESC, pr.id LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, NormalizeLimit(f.Limit), max(f.Offset, 0))

	return r.query(ctx, query, args...)
}

func (r *PaymentRequestRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.PaymentRequest, error) {
	return r.query(ctx, `
		SELECT `+paymentRequestColumns+` FROM payment_requests pr
		WHERE pr.contract_id = $1
		ORDER BY pr.requested_at DESC, pr.id
	`, contractID)
}

func (r *PaymentRequestRepo) query(ctx context.Context, sql string, args ...any) ([]models.PaymentRequest, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.PaymentRequest{}
	for rows.Next() {
		var pr models.PaymentRequest
		if err := scanPaymentRequest(rows, &pr); err != nil {
			return nil, err
		}
		requests = append(requests, pr)
	}
	return requests, rows.Err()
}

func (r *PaymentRequestRepo) HasPending(ctx context.Context, milestoneID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM payment_requests WHERE milestone_id = $1 AND status = 'PENDING')
	`, milestoneID).Scan(&exists)
	return exists, err
}

func (r *PaymentRequestRepo) MarkApproved(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_requests SET status = 'APPROVED', approved_at = $1
		WHERE id = $2 AND status = 'PENDING'
	`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *PaymentRequestRepo) MarkRejected(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_requests SET status = 'REJECTED', rejection_reason = $1, rejected_at = $2
		WHERE id = $3 AND status = 'PENDING'
	`, reason, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}
