package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCanTransitionMilestone(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{MilestoneStatusPending, MilestoneStatusInProgress, true},
		{MilestoneStatusInProgress, MilestoneStatusCompleted, true},
		{MilestoneStatusCompleted, MilestoneStatusPaid, true},

		// Skips
		{MilestoneStatusPending, MilestoneStatusCompleted, false},
		{MilestoneStatusPending, MilestoneStatusPaid, false},
		{MilestoneStatusInProgress, MilestoneStatusPaid, false},

		// Regressions
		{MilestoneStatusInProgress, MilestoneStatusPending, false},
		{MilestoneStatusCompleted, MilestoneStatusInProgress, false},
		{MilestoneStatusPaid, MilestoneStatusCompleted, false},
		{MilestoneStatusPaid, MilestoneStatusPending, false},

		// Self loops
		{MilestoneStatusPending, MilestoneStatusPending, false},
		{MilestoneStatusPaid, MilestoneStatusPaid, false},

		// Unknown
		{"nonexistent", MilestoneStatusInProgress, false},
		{MilestoneStatusPending, "nonexistent", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := CanTransitionMilestone(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransitionMilestone(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestCanTransitionContract(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{ContractStatusPending, ContractStatusActive, true},
		{ContractStatusPending, ContractStatusRejected, true},
		{ContractStatusActive, ContractStatusCompleted, true},
		{ContractStatusActive, ContractStatusCancelled, true},

		{ContractStatusPending, ContractStatusCancelled, false},
		{ContractStatusPending, ContractStatusCompleted, false},
		{ContractStatusActive, ContractStatusPending, false},
		{ContractStatusActive, ContractStatusRejected, false},
		{ContractStatusRejected, ContractStatusActive, false},
		{ContractStatusCancelled, ContractStatusActive, false},
		{ContractStatusCompleted, ContractStatusCancelled, false},
		{"nonexistent", ContractStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := CanTransitionContract(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransitionContract(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestMilestoneOrderMatchesTable(t *testing.T) {
	for i := 0; i < len(MilestoneStatusOrder)-1; i++ {
		from, to := MilestoneStatusOrder[i], MilestoneStatusOrder[i+1]
		if !CanTransitionMilestone(from, to) {
			t.Errorf("order step %s -> %s is not allowed by the table", from, to)
		}
		if got := AvailableMilestoneTransitions(from); len(got) != 1 || got[0] != to {
			t.Errorf("AvailableMilestoneTransitions(%q) = %v, want [%s]", from, got, to)
		}
	}
	if len(ValidMilestoneTransitions) != len(MilestoneStatusOrder) {
		t.Errorf("table has %d statuses, order has %d", len(ValidMilestoneTransitions), len(MilestoneStatusOrder))
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, status := range []string{ContractStatusRejected, ContractStatusCompleted, ContractStatusCancelled} {
		if !IsTerminalContractStatus(status) {
			t.Errorf("contract status %q should be terminal", status)
		}
	}
	if IsTerminalContractStatus("nonexistent") {
		t.Error("unknown status must not be reported terminal")
	}
	if got := AvailableMilestoneTransitions(MilestoneStatusPaid); len(got) != 0 {
		t.Errorf("PAID should have no transitions, got %v", got)
	}
	for _, status := range []string{PaymentRequestStatusApproved, PaymentRequestStatusRejected} {
		if len(ValidPaymentRequestTransitions[status]) != 0 {
			t.Errorf("payment request status %q should be terminal", status)
		}
	}
}

func TestAvailableTransitionsReturnsCopy(t *testing.T) {
	got := AvailableContractTransitions(ContractStatusPending)
	got[0] = "MUTATED"
	if ValidContractTransitions[ContractStatusPending][0] == "MUTATED" {
		t.Fatal("AvailableContractTransitions leaked the backing table")
	}
}

func TestMilestonePatchApply(t *testing.T) {
	title := "Design"
	amount := decimal.NewFromInt(750)
	m := &Milestone{Title: "Old", Amount: decimal.NewFromInt(500), Status: MilestoneStatusCompleted, OrderIndex: 2}

	MilestonePatch{Title: &title, Amount: &amount}.Apply(m)

	if m.Title != "Design" || !m.Amount.Equal(amount) {
		t.Errorf("patch not applied: %+v", m)
	}
	if m.Status != MilestoneStatusCompleted || m.OrderIndex != 2 {
		t.Errorf("patch touched fields it should not: %+v", m)
	}
	if !(MilestonePatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
}
