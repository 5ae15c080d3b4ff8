package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Milestone statuses, strictly forward-only.
const (
	MilestoneStatusPending    = "PENDING"
	MilestoneStatusInProgress = "IN_PROGRESS"
	MilestoneStatusCompleted  = "COMPLETED"
	MilestoneStatusPaid       = "PAID"
)

var ValidMilestoneTransitions = map[string][]string{
	MilestoneStatusPending:    {MilestoneStatusInProgress},
	MilestoneStatusInProgress: {MilestoneStatusCompleted},
	MilestoneStatusCompleted:  {MilestoneStatusPaid},
	MilestoneStatusPaid:       {},
}

// MilestoneStatusOrder is the only legal sequence a milestone walks through.
var MilestoneStatusOrder = []string{
	MilestoneStatusPending,
	MilestoneStatusInProgress,
	MilestoneStatusCompleted,
	MilestoneStatusPaid,
}

func CanTransitionMilestone(from, to string) bool {
	return canTransition(ValidMilestoneTransitions, from, to)
}

func AvailableMilestoneTransitions(from string) []string {
	return availableTransitions(ValidMilestoneTransitions, from)
}

func IsValidMilestoneStatus(status string) bool {
	_, ok := ValidMilestoneTransitions[status]
	return ok
}

type Milestone struct {
	ID            uuid.UUID       `json:"id"`
	ContractID    uuid.UUID       `json:"contract_id"`
	Title         string          `json:"title"`
	Description   *string         `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	OrderIndex    int             `json:"order_index"` // display hint, not a status constraint
	Status        string          `json:"status"`
	CompletedDate *time.Time      `json:"completed_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MilestonePatch carries metadata edits. Nil fields are left unchanged;
// the Clear flags unset the optional fields and win over a value.
type MilestonePatch struct {
	Title       *string
	Description *string
	Amount      *decimal.Decimal
	DueDate     *time.Time
	OrderIndex  *int

	ClearDescription bool
	ClearDueDate     bool
}

func (p MilestonePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Amount == nil && p.DueDate == nil && p.OrderIndex == nil &&
		!p.ClearDescription && !p.ClearDueDate
}

// Apply copies the set fields onto m. Status is never touched.
func (p MilestonePatch) Apply(m *Milestone) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Description != nil {
		m.Description = p.Description
	}
	if p.Amount != nil {
		m.Amount = *p.Amount
	}
	if p.DueDate != nil {
		m.DueDate = p.DueDate
	}
	if p.OrderIndex != nil {
		m.OrderIndex = *p.OrderIndex
	}
	if p.ClearDescription {
		m.Description = nil
	}
	if p.ClearDueDate {
		m.DueDate = nil
	}
}
