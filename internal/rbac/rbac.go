package rbac

import (
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
)

// Party roles on a contract
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

// Permission constants
const (
	PermViewContract      = "view_contract"
	PermCreateContract    = "create_contract"
	PermAcceptContract    = "accept_contract"
	PermRejectContract    = "reject_contract"
	PermCancelContract    = "cancel_contract"
	PermCompleteContract  = "complete_contract"
	PermCreateMilestone   = "create_milestone"
	PermUpdateMilestone   = "update_milestone"
	PermDeleteMilestone   = "delete_milestone"
	PermStartMilestone    = "start_milestone"
	PermCompleteMilestone = "complete_milestone"
	PermRequestPayment    = "request_payment"
	PermApprovePayment    = "approve_payment"
	PermRejectPayment     = "reject_payment"
	PermProcessPayment    = "process_payment"
)

// RolePermissions defines what each side of a contract can do.
// Milestones are client-defined scope, payment requests are freelancer
// claims against it, and resolving them is a client-side control.
var RolePermissions = map[string][]string{
	RoleClient: {
		PermViewContract, PermCreateContract, PermCancelContract, PermCompleteContract,
		PermCreateMilestone, PermUpdateMilestone, PermDeleteMilestone, PermStartMilestone,
		PermApprovePayment, PermRejectPayment, PermProcessPayment,
	},
	RoleFreelancer: {
		PermViewContract, PermAcceptContract, PermRejectContract, PermCancelContract,
		PermStartMilestone, PermCompleteMilestone, PermRequestPayment,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation checks if permission moves money (client-only).
func IsFinancialOperation(permission string) bool {
	return permission == PermApprovePayment || permission == PermProcessPayment
}

// PartyRole returns the side actorID holds on the contract, or "" for outsiders.
func PartyRole(c *models.Contract, actorID uuid.UUID) string {
	if actorID == uuid.Nil {
		return ""
	}
	switch actorID {
	case c.ClientID:
		return RoleClient
	case c.FreelancerID:
		return RoleFreelancer
	}
	return ""
}

// Decision is the outcome of a guard check.
type Decision int

const (
	Allowed Decision = iota
	NotAParty
	WrongSide
)

// Check decides whether actorID may exercise permission on the contract.
func Check(c *models.Contract, actorID uuid.UUID, permission string) Decision {
	role := PartyRole(c, actorID)
	if role == "" {
		return NotAParty
	}
	if !HasPermission(role, permission) {
		return WrongSide
	}
	return Allowed
}

// MilestonePermission maps a target milestone status to the permission
// required to move a milestone there. PAID has none: only payment approval
// can set it.
func MilestonePermission(targetStatus string) (string, bool) {
	switch targetStatus {
	case models.MilestoneStatusInProgress:
		return PermStartMilestone, true
	case models.MilestoneStatusCompleted:
		return PermCompleteMilestone, true
	}
	return "", false
}
