package services

import (
	"context"
	"errors"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/rbac"
	"github.com/freelance-marketplace/contract-workflow/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ContractQuery struct {
	Role   string // "client", "freelancer" or "" for both
	Status string
	Limit  int
	Offset int
}

type PaymentRequestQuery struct {
	ContractID  *uuid.UUID
	MilestoneID *uuid.UUID
	Status      string
	Limit       int
	Offset      int
}

// ContractOverview is the dashboard projection of one contract.
type ContractOverview struct {
	Contract          *models.Contract   `json:"contract"`
	Milestones        []models.Milestone `json:"milestones"`
	MilestoneCounts   map[string]int     `json:"milestone_counts"`
	AllocatedAmount   decimal.Decimal    `json:"allocated_amount"`
	UnallocatedAmount decimal.Decimal    `json:"unallocated_amount"`
	PaidAmount        decimal.Decimal    `json:"paid_amount"`
	PendingAmount     decimal.Decimal    `json:"pending_amount"`
	AvailableActions  []rbac.Action      `json:"available_actions"`
}

// QueryService serves the read side. Every read is scoped to the contracts
// the caller is a party to.
type QueryService struct {
	store repositories.Store
	log   *zap.Logger
}

func NewQueryService(store repositories.Store, log *zap.Logger) *QueryService {
	return &QueryService{store: store, log: log}
}

func (s *QueryService) ListContracts(ctx context.Context, actor uuid.UUID, q ContractQuery) ([]models.Contract, error) {
	f := repositories.ContractFilter{Limit: q.Limit, Offset: q.Offset}
	switch q.Role {
	case "":
		f.PartyID = &actor
	case rbac.RoleClient:
		f.ClientID = &actor
	case rbac.RoleFreelancer:
		f.FreelancerID = &actor
	default:
		return nil, validation("invalid_role", "role must be client or freelancer")
	}
	if q.Status != "" {
		if _, ok := models.ValidContractTransitions[q.Status]; !ok {
			return nil, validation("invalid_status", "unknown contract status %q", q.Status)
		}
		f.Status = &q.Status
	}
	return s.store.Contracts().List(ctx, f)
}

// contractFor loads a contract and checks the caller is a party to it.
func (s *QueryService) contractFor(ctx context.Context, id, actor uuid.UUID) (*models.Contract, error) {
	c, err := s.store.Contracts().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound("contract")
	}
	if err != nil {
		return nil, err
	}
	if err := authorize(c, actor, rbac.PermViewContract); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *QueryService) GetContract(ctx context.Context, id, actor uuid.UUID) (*models.Contract, error) {
	return s.contractFor(ctx, id, actor)
}

// ListMilestones returns milestones ordered by due date, not by order index.
func (s *QueryService) ListMilestones(ctx context.Context, contractID, actor uuid.UUID) ([]models.Milestone, error) {
	if _, err := s.contractFor(ctx, contractID, actor); err != nil {
		return nil, err
	}
	return s.store.Milestones().ListByContract(ctx, contractID)
}

func (s *QueryService) ListPaymentRequests(ctx context.Context, actor uuid.UUID, q PaymentRequestQuery) ([]models.PaymentRequest, error) {
	if q.ContractID != nil {
		if _, err := s.contractFor(ctx, *q.ContractID, actor); err != nil {
			return nil, err
		}
	}
	f := repositories.PaymentRequestFilter{
		PartyID:     &actor,
		ContractID:  q.ContractID,
		MilestoneID: q.MilestoneID,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	if q.Status != "" {
		if !models.IsValidPaymentRequestStatus(q.Status) {
			return nil, validation("invalid_status", "unknown payment request status %q", q.Status)
		}
		f.Status = &q.Status
	}
	return s.store.PaymentRequests().List(ctx, f)
}

func (s *QueryService) GetPaymentRequest(ctx context.Context, id, actor uuid.UUID) (*models.PaymentRequest, error) {
	pr, err := s.store.PaymentRequests().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound("payment_request")
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.contractFor(ctx, pr.ContractID, actor); err != nil {
		return nil, err
	}
	return pr, nil
}

func (s *QueryService) ListPayments(ctx context.Context, requestID, actor uuid.UUID) ([]models.Payment, error) {
	if _, err := s.GetPaymentRequest(ctx, requestID, actor); err != nil {
		return nil, err
	}
	return s.store.Payments().ListByRequest(ctx, requestID)
}

// AvailableActions reports the commands the caller may issue right now.
func (s *QueryService) AvailableActions(ctx context.Context, contractID, actor uuid.UUID) ([]rbac.Action, error) {
	overview, err := s.ContractOverview(ctx, contractID, actor)
	if err != nil {
		return nil, err
	}
	return overview.AvailableActions, nil
}

func (s *QueryService) ContractOverview(ctx context.Context, contractID, actor uuid.UUID) (*ContractOverview, error) {
	var out *ContractOverview
	// One snapshot so milestones and requests agree with each other.
	err := s.store.WithReadTx(ctx, func(tx repositories.Repos) error {
		c, err := tx.Contracts().GetByID(ctx, contractID)
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound("contract")
		}
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermViewContract); err != nil {
			return err
		}
		milestones, err := tx.Milestones().ListByContract(ctx, c.ID)
		if err != nil {
			return err
		}
		requests, err := tx.PaymentRequests().ListByContract(ctx, c.ID)
		if err != nil {
			return err
		}
		out = buildOverview(c, milestones, requests, actor)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildOverview(c *models.Contract, milestones []models.Milestone, requests []models.PaymentRequest, actor uuid.UUID) *ContractOverview {
	o := &ContractOverview{
		Contract:        c,
		Milestones:      milestones,
		MilestoneCounts: make(map[string]int, len(models.MilestoneStatusOrder)),
	}
	for _, status := range models.MilestoneStatusOrder {
		o.MilestoneCounts[status] = 0
	}
	for _, m := range milestones {
		o.MilestoneCounts[m.Status]++
		o.AllocatedAmount = o.AllocatedAmount.Add(m.Amount)
	}
	for _, r := range requests {
		switch r.Status {
		case models.PaymentRequestStatusApproved:
			o.PaidAmount = o.PaidAmount.Add(r.Amount)
		case models.PaymentRequestStatusPending:
			o.PendingAmount = o.PendingAmount.Add(r.Amount)
		}
	}
	o.UnallocatedAmount = c.TotalAmount.Sub(o.AllocatedAmount)
	o.AvailableActions = rbac.AvailableActions(c, milestones, requests, actor)
	if o.AvailableActions == nil {
		o.AvailableActions = []rbac.Action{}
	}
	return o
}

// ContractHistory returns the audit trail of a contract, newest first.
func (s *QueryService) ContractHistory(ctx context.Context, contractID, actor uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if _, err := s.contractFor(ctx, contractID, actor); err != nil {
		return nil, err
	}
	return s.store.Audit().GetByContract(ctx, contractID, limit, offset)
}
