package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Contract statuses
const (
	ContractStatusPending   = "PENDING"
	ContractStatusActive    = "ACTIVE"
	ContractStatusRejected  = "REJECTED"
	ContractStatusCompleted = "COMPLETED"
	ContractStatusCancelled = "CANCELLED"
)

// Valid contract transitions: from -> []to
var ValidContractTransitions = map[string][]string{
	ContractStatusPending:   {ContractStatusActive, ContractStatusRejected},
	ContractStatusActive:    {ContractStatusCompleted, ContractStatusCancelled},
	ContractStatusRejected:  {},
	ContractStatusCompleted: {},
	ContractStatusCancelled: {},
}

func CanTransitionContract(from, to string) bool {
	return canTransition(ValidContractTransitions, from, to)
}

// AvailableContractTransitions lists the statuses reachable from the given one.
// Used for UI affordances only; commands re-validate.
func AvailableContractTransitions(from string) []string {
	return availableTransitions(ValidContractTransitions, from)
}

func IsTerminalContractStatus(status string) bool {
	next, ok := ValidContractTransitions[status]
	return ok && len(next) == 0
}

type Contract struct {
	ID           uuid.UUID       `json:"id"`
	ProjectID    string          `json:"project_id"`
	ProposalID   string          `json:"proposal_id"`
	ClientID     uuid.UUID       `json:"client_id"`
	FreelancerID uuid.UUID       `json:"freelancer_id"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	StartDate    *time.Time      `json:"start_date,omitempty"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsParty reports whether userID is the client or the freelancer on the contract.
func (c *Contract) IsParty(userID uuid.UUID) bool {
	return userID != uuid.Nil && (c.ClientID == userID || c.FreelancerID == userID)
}

func (c *Contract) IsActive() bool {
	return c.Status == ContractStatusActive
}

// canTransition and availableTransitions are shared by all status tables.
func canTransition(table map[string][]string, from, to string) bool {
	allowed, ok := table[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func availableTransitions(table map[string][]string, from string) []string {
	allowed := table[from]
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}
