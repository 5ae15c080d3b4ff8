package services

import (
	"context"
	"testing"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/rbac"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestListContractsIsPartyScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pendingContract(t, 100)
	f.activeContract(t, 200)

	tests := []struct {
		name  string
		actor uuid.UUID
		q     ContractQuery
		want  int
	}{
		{"client sees both", f.client, ContractQuery{}, 2},
		{"freelancer as freelancer", f.freelancer, ContractQuery{Role: rbac.RoleFreelancer}, 2},
		{"freelancer as client", f.freelancer, ContractQuery{Role: rbac.RoleClient}, 0},
		{"status filter", f.client, ContractQuery{Status: models.ContractStatusActive}, 1},
		{"outsider", f.outsider, ContractQuery{}, 0},
		{"page size", f.client, ContractQuery{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.q.ListContracts(ctx, tt.actor, tt.q)
			if err != nil {
				t.Fatalf("ListContracts: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d contracts, want %d", len(got), tt.want)
			}
		})
	}

	got, err := f.q.ListContracts(ctx, f.client, ContractQuery{})
	if err != nil {
		t.Fatalf("ListContracts: %v", err)
	}
	if len(got) == 2 && got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Errorf("contracts not sorted newest first")
	}

	_, err = f.q.ListContracts(ctx, f.client, ContractQuery{Role: "admin"})
	wantKind(t, err, KindValidation)
	_, err = f.q.ListContracts(ctx, f.client, ContractQuery{Status: "DONE"})
	wantKind(t, err, KindValidation)
}

func TestGetContractRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.pendingContract(t, 100)

	if _, err := f.q.GetContract(ctx, c.ID, f.freelancer); err != nil {
		t.Fatalf("GetContract: %v", err)
	}
	_, err := f.q.GetContract(ctx, c.ID, f.outsider)
	wantErr(t, err, ErrNotAParty)
	_, err = f.q.GetContract(ctx, uuid.New(), f.client)
	wantKind(t, err, KindNotFound)
}

func TestListMilestonesSortedByDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t, 1000)

	day := func(d int) *time.Time {
		t := time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	inputs := []CreateMilestoneInput{
		{Title: "no date", Amount: decimal.NewFromInt(10), OrderIndex: 0},
		{Title: "march 20", Amount: decimal.NewFromInt(10), DueDate: day(20), OrderIndex: 1},
		{Title: "march 1", Amount: decimal.NewFromInt(10), DueDate: day(1), OrderIndex: 2},
	}
	for _, in := range inputs {
		if _, err := f.wf.CreateMilestone(ctx, c.ID, f.client, in); err != nil {
			t.Fatalf("CreateMilestone: %v", err)
		}
	}

	got, err := f.q.ListMilestones(ctx, c.ID, f.freelancer)
	if err != nil {
		t.Fatalf("ListMilestones: %v", err)
	}
	want := []string{"march 1", "march 20", "no date"}
	for i, title := range want {
		if got[i].Title != title {
			t.Errorf("milestone[%d] = %s, want %s", i, got[i].Title, title)
		}
	}

	_, err = f.q.ListMilestones(ctx, c.ID, f.outsider)
	wantKind(t, err, KindForbiddenActor)
}

func TestContractOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t, 1000)

	paid := f.completedMilestone(t, c, "paid", 300)
	pending := f.completedMilestone(t, c, "pending", 200)
	f.milestone(t, c, "todo", 100)

	pr, err := f.wf.RequestPayment(ctx, c.ID, paid.ID, f.freelancer, RequestPaymentInput{Amount: decimal.NewFromInt(300)})
	if err != nil {
		t.Fatalf("RequestPayment: %v", err)
	}
	if _, err := f.wf.ApprovePaymentRequest(ctx, pr.ID, f.client); err != nil {
		t.Fatalf("approve: %v", err)
	}
	open, err := f.wf.RequestPayment(ctx, c.ID, pending.ID, f.freelancer, RequestPaymentInput{Amount: decimal.NewFromInt(150)})
	if err != nil {
		t.Fatalf("RequestPayment: %v", err)
	}

	o, err := f.q.ContractOverview(ctx, c.ID, f.client)
	if err != nil {
		t.Fatalf("ContractOverview: %v", err)
	}

	amounts := []struct {
		name string
		got  decimal.Decimal
		want int64
	}{
		{"allocated", o.AllocatedAmount, 600},
		{"unallocated", o.UnallocatedAmount, 400},
		{"paid", o.PaidAmount, 300},
		{"pending", o.PendingAmount, 150},
	}
	for _, a := range amounts {
		if !a.got.Equal(decimal.NewFromInt(a.want)) {
			t.Errorf("%s = %s, want %d", a.name, a.got, a.want)
		}
	}

	counts := map[string]int{
		models.MilestoneStatusPending:    1,
		models.MilestoneStatusInProgress: 0,
		models.MilestoneStatusCompleted:  1,
		models.MilestoneStatusPaid:       1,
	}
	for status, want := range counts {
		if o.MilestoneCounts[status] != want {
			t.Errorf("count[%s] = %d, want %d", status, o.MilestoneCounts[status], want)
		}
	}

	hasApprove := false
	for _, a := range o.AvailableActions {
		if a.Name == rbac.PermApprovePayment && a.PaymentRequestID != nil && *a.PaymentRequestID == open.ID {
			hasApprove = true
		}
		if a.Name == rbac.PermRequestPayment {
			t.Errorf("client offered %s", a.Name)
		}
	}
	if !hasApprove {
		t.Error("client not offered approve for the open request")
	}

	actions, err := f.q.AvailableActions(ctx, c.ID, f.freelancer)
	if err != nil {
		t.Fatalf("AvailableActions: %v", err)
	}
	for _, a := range actions {
		if a.Name == rbac.PermApprovePayment || a.Name == rbac.PermCreateMilestone {
			t.Errorf("freelancer offered %s", a.Name)
		}
	}
}

func TestPaymentRequestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t, 1000)
	m1 := f.completedMilestone(t, c, "one", 100)
	m2 := f.completedMilestone(t, c, "two", 100)

	r1, err := f.wf.RequestPayment(ctx, c.ID, m1.ID, f.freelancer, RequestPaymentInput{Amount: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("RequestPayment: %v", err)
	}
	if _, err := f.wf.RejectPaymentRequest(ctx, r1.ID, f.client, "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.wf.RequestPayment(ctx, c.ID, m2.ID, f.freelancer, RequestPaymentInput{Amount: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("RequestPayment: %v", err)
	}

	all, err := f.q.ListPaymentRequests(ctx, f.client, PaymentRequestQuery{ContractID: &c.ID})
	if err != nil {
		t.Fatalf("ListPaymentRequests: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("requests = %d, want 2", len(all))
	}

	pending, err := f.q.ListPaymentRequests(ctx, f.freelancer, PaymentRequestQuery{Status: models.PaymentRequestStatusPending})
	if err != nil {
		t.Fatalf("ListPaymentRequests: %v", err)
	}
	if len(pending) != 1 || pending[0].MilestoneID != m2.ID {
		t.Errorf("pending requests = %+v", pending)
	}

	none, err := f.q.ListPaymentRequests(ctx, f.outsider, PaymentRequestQuery{})
	if err != nil {
		t.Fatalf("ListPaymentRequests: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("outsider sees %d requests", len(none))
	}

	_, err = f.q.GetPaymentRequest(ctx, r1.ID, f.outsider)
	wantErr(t, err, ErrNotAParty)
	_, err = f.q.ListPaymentRequests(ctx, f.client, PaymentRequestQuery{Status: "PAID"})
	wantKind(t, err, KindValidation)
}

func TestContractHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t, 1000)
	f.milestone(t, c, "M", 100)

	history, err := f.q.ContractHistory(ctx, c.ID, f.freelancer, 0, 0)
	if err != nil {
		t.Fatalf("ContractHistory: %v", err)
	}
	want := []string{"milestone_created", "contract_status_PENDING_to_ACTIVE", "contract_created"}
	if len(history) != len(want) {
		t.Fatalf("history has %d entries, want %d", len(history), len(want))
	}
	for i, action := range want {
		if history[i].Action != action {
			t.Errorf("history[%d] = %s, want %s", i, history[i].Action, action)
		}
	}

	_, err = f.q.ContractHistory(ctx, c.ID, f.outsider, 0, 0)
	wantKind(t, err, KindForbiddenActor)
}
