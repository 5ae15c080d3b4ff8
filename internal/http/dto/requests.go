package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateContractRequest struct {
	ProjectID    string          `json:"project_id"`
	ProposalID   string          `json:"proposal_id"`
	FreelancerID string          `json:"freelancer_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	StartDate    *time.Time      `json:"start_date,omitempty"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
}

type CancelContractRequest struct {
	Reason string `json:"reason"`
}

type CreateMilestoneRequest struct {
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	OrderIndex  int             `json:"order_index"`
}

// UpdateMilestoneRequest is a partial update; omitted fields are unchanged.
// clear_description and clear_due_date unset those fields.
type UpdateMilestoneRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	OrderIndex  *int             `json:"order_index,omitempty"`

	ClearDescription bool `json:"clear_description,omitempty"`
	ClearDueDate     bool `json:"clear_due_date,omitempty"`
}

type TransitionMilestoneRequest struct {
	Status string `json:"status"`
}

type RequestPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Description *string         `json:"description,omitempty"`
}

type RejectPaymentRequest struct {
	Reason string `json:"reason"`
}

type ProcessPaymentRequest struct {
	PaymentMethod        string `json:"payment_method"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
}

type SyncUserRequest struct {
	ID          string     `json:"id"`
	Email       *string    `json:"email,omitempty"`
	DisplayName *string    `json:"display_name,omitempty"`
	Role        string     `json:"role"`
	Deleted     bool       `json:"deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}
