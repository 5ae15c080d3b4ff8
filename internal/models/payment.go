package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const PaymentStatusProcessed = "PROCESSED"

// Payment records that processing of an approved request was attempted.
// PaymentMethod and GatewayTransactionID are stored as given.
type Payment struct {
	ID                   uuid.UUID       `json:"id"`
	PaymentRequestID     uuid.UUID       `json:"payment_request_id"`
	ContractID           uuid.UUID       `json:"contract_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	PaymentMethod        string          `json:"payment_method"`
	GatewayTransactionID string          `json:"gateway_transaction_id"`
	Status               string          `json:"status"`
	ProcessedAt          time.Time       `json:"processed_at"`
}
