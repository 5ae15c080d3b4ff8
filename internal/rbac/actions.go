package rbac

import (
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
)

// Action is a command the caller may issue right now. The UI renders these
// instead of re-deriving the rules; every command is still re-validated.
type Action struct {
	Name             string     `json:"action"`
	MilestoneID      *uuid.UUID `json:"milestone_id,omitempty"`
	PaymentRequestID *uuid.UUID `json:"payment_request_id,omitempty"`
	TargetStatus     string     `json:"target_status,omitempty"`
}

// AvailableActions derives the caller's affordances from the current state
// of a contract, its milestones and its payment requests.
func AvailableActions(c *models.Contract, milestones []models.Milestone, requests []models.PaymentRequest, actorID uuid.UUID) []Action {
	role := PartyRole(c, actorID)
	if role == "" {
		return nil
	}

	actions := []Action{}
	add := func(a Action) {
		actions = append(actions, a)
	}

	switch c.Status {
	case models.ContractStatusPending:
		for _, perm := range []string{PermAcceptContract, PermRejectContract} {
			if HasPermission(role, perm) {
				add(Action{Name: perm})
			}
		}
		return actions
	case models.ContractStatusActive:
	default:
		return actions
	}

	pendingByMilestone := make(map[uuid.UUID]bool)
	requested := make(map[uuid.UUID]bool)
	for _, r := range requests {
		requested[r.MilestoneID] = true
		if r.Status == models.PaymentRequestStatusPending {
			pendingByMilestone[r.MilestoneID] = true
		}
	}

	if HasPermission(role, PermCancelContract) {
		add(Action{Name: PermCancelContract})
	}
	if HasPermission(role, PermCreateMilestone) {
		add(Action{Name: PermCreateMilestone})
	}
	if HasPermission(role, PermCompleteContract) && AllMilestonesPaid(milestones) {
		add(Action{Name: PermCompleteContract})
	}

	for i := range milestones {
		m := &milestones[i]
		id := m.ID
		if HasPermission(role, PermUpdateMilestone) {
			add(Action{Name: PermUpdateMilestone, MilestoneID: &id})
		}
		if HasPermission(role, PermDeleteMilestone) && m.Status != models.MilestoneStatusPaid && !requested[id] {
			add(Action{Name: PermDeleteMilestone, MilestoneID: &id})
		}
		for _, next := range models.AvailableMilestoneTransitions(m.Status) {
			perm, ok := MilestonePermission(next)
			if ok && HasPermission(role, perm) {
				add(Action{Name: perm, MilestoneID: &id, TargetStatus: next})
			}
		}
		if HasPermission(role, PermRequestPayment) && m.Status == models.MilestoneStatusCompleted && !pendingByMilestone[id] {
			add(Action{Name: PermRequestPayment, MilestoneID: &id})
		}
	}

	for i := range requests {
		r := &requests[i]
		id, mid := r.ID, r.MilestoneID
		switch r.Status {
		case models.PaymentRequestStatusPending:
			for _, perm := range []string{PermApprovePayment, PermRejectPayment} {
				if HasPermission(role, perm) {
					add(Action{Name: perm, PaymentRequestID: &id, MilestoneID: &mid})
				}
			}
		case models.PaymentRequestStatusApproved:
			if HasPermission(role, PermProcessPayment) {
				add(Action{Name: PermProcessPayment, PaymentRequestID: &id, MilestoneID: &mid})
			}
		}
	}

	return actions
}

// AllMilestonesPaid is true when there is at least one milestone and every
// milestone is PAID.
func AllMilestonesPaid(milestones []models.Milestone) bool {
	if len(milestones) == 0 {
		return false
	}
	for _, m := range milestones {
		if m.Status != models.MilestoneStatusPaid {
			return false
		}
	}
	return true
}
