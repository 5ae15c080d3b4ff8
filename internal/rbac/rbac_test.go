package rbac

import (
	"testing"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
)

func testContract(status string) *models.Contract {
	return &models.Contract{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		FreelancerID: uuid.New(),
		Status:       status,
	}
}

func TestPartyRole(t *testing.T) {
	c := testContract(models.ContractStatusActive)

	if got := PartyRole(c, c.ClientID); got != RoleClient {
		t.Errorf("client role = %q", got)
	}
	if got := PartyRole(c, c.FreelancerID); got != RoleFreelancer {
		t.Errorf("freelancer role = %q", got)
	}
	if got := PartyRole(c, uuid.New()); got != "" {
		t.Errorf("outsider role = %q, want empty", got)
	}
	if got := PartyRole(c, uuid.Nil); got != "" {
		t.Errorf("nil actor role = %q, want empty", got)
	}
}

func TestCheck(t *testing.T) {
	c := testContract(models.ContractStatusActive)
	outsider := uuid.New()

	tests := []struct {
		name  string
		actor uuid.UUID
		perm  string
		want  Decision
	}{
		{"freelancer accepts", c.FreelancerID, PermAcceptContract, Allowed},
		{"client accepts", c.ClientID, PermAcceptContract, WrongSide},
		{"freelancer rejects", c.FreelancerID, PermRejectContract, Allowed},
		{"client creates milestone", c.ClientID, PermCreateMilestone, Allowed},
		{"freelancer creates milestone", c.FreelancerID, PermCreateMilestone, WrongSide},
		{"client deletes milestone", c.ClientID, PermDeleteMilestone, Allowed},
		{"freelancer deletes milestone", c.FreelancerID, PermDeleteMilestone, WrongSide},
		{"freelancer requests payment", c.FreelancerID, PermRequestPayment, Allowed},
		{"client requests payment", c.ClientID, PermRequestPayment, WrongSide},
		{"client approves", c.ClientID, PermApprovePayment, Allowed},
		{"freelancer approves", c.FreelancerID, PermApprovePayment, WrongSide},
		{"freelancer rejects payment", c.FreelancerID, PermRejectPayment, WrongSide},
		{"either starts milestone", c.FreelancerID, PermStartMilestone, Allowed},
		{"client starts milestone", c.ClientID, PermStartMilestone, Allowed},
		{"client completes milestone", c.ClientID, PermCompleteMilestone, WrongSide},
		{"outsider views", outsider, PermViewContract, NotAParty},
		{"outsider approves", outsider, PermApprovePayment, NotAParty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Check(c, tt.actor, tt.perm); got != tt.want {
				t.Errorf("Check(%s) = %v, want %v", tt.perm, got, tt.want)
			}
		})
	}
}

func TestFinancialOperationsAreClientOnly(t *testing.T) {
	for _, perms := range RolePermissions {
		for _, p := range perms {
			if IsFinancialOperation(p) && HasPermission(RoleFreelancer, p) {
				t.Errorf("freelancer must not hold financial permission %q", p)
			}
		}
	}
}

func TestMilestonePermission(t *testing.T) {
	if _, ok := MilestonePermission(models.MilestoneStatusPaid); ok {
		t.Error("PAID must not be reachable through a milestone permission")
	}
	if p, ok := MilestonePermission(models.MilestoneStatusInProgress); !ok || p != PermStartMilestone {
		t.Errorf("IN_PROGRESS -> %q, %v", p, ok)
	}
	if p, ok := MilestonePermission(models.MilestoneStatusCompleted); !ok || p != PermCompleteMilestone {
		t.Errorf("COMPLETED -> %q, %v", p, ok)
	}
}

func hasAction(actions []Action, name string, milestoneID *uuid.UUID) bool {
	for _, a := range actions {
		if a.Name != name {
			continue
		}
		if milestoneID == nil || (a.MilestoneID != nil && *a.MilestoneID == *milestoneID) {
			return true
		}
	}
	return false
}

func TestAvailableActionsPendingContract(t *testing.T) {
	c := testContract(models.ContractStatusPending)

	fa := AvailableActions(c, nil, nil, c.FreelancerID)
	if !hasAction(fa, PermAcceptContract, nil) || !hasAction(fa, PermRejectContract, nil) {
		t.Errorf("freelancer should be offered accept/reject, got %+v", fa)
	}
	if ca := AvailableActions(c, nil, nil, c.ClientID); len(ca) != 0 {
		t.Errorf("client has no actions on a pending contract, got %+v", ca)
	}
	if oa := AvailableActions(c, nil, nil, uuid.New()); oa != nil {
		t.Errorf("outsider should get nil, got %+v", oa)
	}
}

func TestAvailableActionsActiveContract(t *testing.T) {
	c := testContract(models.ContractStatusActive)
	completed := models.Milestone{ID: uuid.New(), ContractID: c.ID, Status: models.MilestoneStatusCompleted}
	paid := models.Milestone{ID: uuid.New(), ContractID: c.ID, Status: models.MilestoneStatusPaid}
	pending := models.Milestone{ID: uuid.New(), ContractID: c.ID, Status: models.MilestoneStatusPending}
	milestones := []models.Milestone{completed, paid, pending}

	fa := AvailableActions(c, milestones, nil, c.FreelancerID)
	if !hasAction(fa, PermRequestPayment, &completed.ID) {
		t.Error("freelancer should be able to request payment on COMPLETED milestone")
	}
	if hasAction(fa, PermRequestPayment, &pending.ID) {
		t.Error("no payment request on PENDING milestone")
	}
	if !hasAction(fa, PermStartMilestone, &pending.ID) {
		t.Error("freelancer should be able to start PENDING milestone")
	}
	if hasAction(fa, PermCreateMilestone, nil) {
		t.Error("freelancer must not be offered create_milestone")
	}

	ca := AvailableActions(c, milestones, nil, c.ClientID)
	if hasAction(ca, PermDeleteMilestone, &paid.ID) {
		t.Error("PAID milestone must not be deletable")
	}
	if !hasAction(ca, PermDeleteMilestone, &pending.ID) {
		t.Error("client should be able to delete PENDING milestone")
	}
	if hasAction(ca, PermCompleteContract, nil) {
		t.Error("contract with unpaid milestones cannot be completed")
	}

	// A pending request blocks a second one and offers approve/reject to the client.
	req := models.PaymentRequest{ID: uuid.New(), ContractID: c.ID, MilestoneID: completed.ID, Status: models.PaymentRequestStatusPending}
	fa = AvailableActions(c, milestones, []models.PaymentRequest{req}, c.FreelancerID)
	if hasAction(fa, PermRequestPayment, &completed.ID) {
		t.Error("request_payment must not be offered while a request is pending")
	}
	ca = AvailableActions(c, milestones, []models.PaymentRequest{req}, c.ClientID)
	if !hasAction(ca, PermApprovePayment, &completed.ID) || !hasAction(ca, PermRejectPayment, &completed.ID) {
		t.Error("client should be offered approve/reject on pending request")
	}
	if hasAction(ca, PermDeleteMilestone, &completed.ID) {
		t.Error("milestone with pending request must not be deletable")
	}
}

func TestAvailableActionsCompletableContract(t *testing.T) {
	c := testContract(models.ContractStatusActive)
	ms := []models.Milestone{
		{ID: uuid.New(), Status: models.MilestoneStatusPaid},
		{ID: uuid.New(), Status: models.MilestoneStatusPaid},
	}
	if !hasAction(AvailableActions(c, ms, nil, c.ClientID), PermCompleteContract, nil) {
		t.Error("client should be able to complete a fully paid contract")
	}
	if AllMilestonesPaid(nil) {
		t.Error("no milestones is not 'all paid'")
	}
}

func TestAvailableActionsTerminalContract(t *testing.T) {
	c := testContract(models.ContractStatusCancelled)
	ms := []models.Milestone{{ID: uuid.New(), Status: models.MilestoneStatusPending}}
	if got := AvailableActions(c, ms, nil, c.ClientID); len(got) != 0 {
		t.Errorf("cancelled contract should offer nothing, got %+v", got)
	}
}
