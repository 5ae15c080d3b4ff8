package repositories

import (
	"context"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
)

type PaymentRepo struct {
	db DBTX
}

func NewPaymentRepo(db DBTX) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (payment_request_id, contract_id, amount, currency, payment_method, gateway_transaction_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, processed_at
	`, p.PaymentRequestID, p.ContractID, p.Amount, p.Currency, p.PaymentMethod, p.GatewayTransactionID, p.Status,
	).Scan(&p.ID, &p.ProcessedAt)
	return mapErr(err)
}

func (r *PaymentRepo) ListByRequest(ctx context.Context, paymentRequestID uuid.UUID) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payment_request_id, contract_id, amount, currency, payment_method,
		       gateway_transaction_id, status, processed_at
		FROM payments WHERE payment_request_id = $1
		ORDER BY processed_at DESC
	`, paymentRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.PaymentRequestID, &p.ContractID, &p.Amount, &p.Currency, &p.PaymentMethod,
			&p.GatewayTransactionID, &p.Status, &p.ProcessedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
