package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment request statuses. APPROVED means the milestone is PAID.
const (
	PaymentRequestStatusPending  = "PENDING"
	PaymentRequestStatusApproved = "APPROVED"
	PaymentRequestStatusRejected = "REJECTED"
)

var ValidPaymentRequestTransitions = map[string][]string{
	PaymentRequestStatusPending:  {PaymentRequestStatusApproved, PaymentRequestStatusRejected},
	PaymentRequestStatusApproved: {},
	PaymentRequestStatusRejected: {},
}

func CanTransitionPaymentRequest(from, to string) bool {
	return canTransition(ValidPaymentRequestTransitions, from, to)
}

func IsValidPaymentRequestStatus(status string) bool {
	_, ok := ValidPaymentRequestTransitions[status]
	return ok
}

type PaymentRequest struct {
	ID              uuid.UUID       `json:"id"`
	ContractID      uuid.UUID       `json:"contract_id"`
	MilestoneID     uuid.UUID       `json:"milestone_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     *string         `json:"description,omitempty"`
	Status          string          `json:"status"`
	RequestedAt     time.Time       `json:"requested_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
}

func (r *PaymentRequest) IsResolved() bool {
	return r.Status != PaymentRequestStatusPending
}
