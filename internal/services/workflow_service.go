package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/events"
	"github.com/freelance-marketplace/contract-workflow/internal/metrics"
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/rbac"
	"github.com/freelance-marketplace/contract-workflow/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type CreateContractInput struct {
	ProjectID    string
	ProposalID   string
	ClientID     uuid.UUID
	FreelancerID uuid.UUID
	TotalAmount  decimal.Decimal
	Currency     string
	StartDate    *time.Time
	EndDate      *time.Time
}

type CreateMilestoneInput struct {
	Title       string
	Description *string
	Amount      decimal.Decimal
	DueDate     *time.Time
	OrderIndex  int
}

type RequestPaymentInput struct {
	Amount      decimal.Decimal
	Currency    string // defaults to the contract currency
	Description *string
}

type ProcessPaymentInput struct {
	PaymentMethod        string
	GatewayTransactionID string
}

// WorkflowService runs every state-changing command on contracts, milestones
// and payment requests. Each command is one store transaction that first
// locks the owning contract.
type WorkflowService struct {
	store     repositories.Store
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewWorkflowService(store repositories.Store, publisher events.Publisher, log *zap.Logger) *WorkflowService {
	return &WorkflowService{
		store:     store,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source for approved/rejected/completed stamps.
func (s *WorkflowService) SetClock(now func() time.Time) {
	s.now = now
}

// outbox collects events raised inside a transaction. They are published
// only after commit; a retried transaction starts with an empty outbox.
type outbox struct {
	events []events.Event
}

func (o *outbox) add(c *models.Contract, eventType string, extra map[string]any) {
	payload := map[string]any{
		"contract_id":     c.ID.String(),
		"client_id":       c.ClientID.String(),
		"freelancer_id":   c.FreelancerID.String(),
		"contract_status": c.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	o.events = append(o.events, events.Event{Type: eventType, Payload: payload})
}

func (s *WorkflowService) execute(ctx context.Context, op string, fn func(tx repositories.Repos, box *outbox) error) error {
	var box *outbox
	err := s.store.WithTx(ctx, func(tx repositories.Repos) error {
		box = &outbox{}
		return fn(tx, box)
	})
	if err != nil {
		err = s.classify(op, err)
		outcome := KindOf(err)
		if outcome == "" {
			outcome = "error"
		}
		metrics.RecordWorkflowOperation(op, outcome)
		return err
	}

	metrics.RecordWorkflowOperation(op, "ok")
	for _, event := range box.events {
		s.publish(ctx, event)
	}
	return nil
}

func (s *WorkflowService) classify(op string, err error) error {
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, repositories.ErrStaleState) {
		return ErrConcurrentUpdate
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.log.Error("workflow command failed", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (s *WorkflowService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.Stream, event); err != nil {
		metrics.IncrementEventPublished(event.Type, "failed")
		s.log.Warn("failed to publish event",
			zap.String("type", event.Type),
			zap.Any("contract_id", event.Payload["contract_id"]),
			zap.Error(err),
		)
		return
	}
	metrics.IncrementEventPublished(event.Type, "ok")
}

func (s *WorkflowService) lockContract(ctx context.Context, tx repositories.Repos, id uuid.UUID) (*models.Contract, error) {
	c, err := tx.Contracts().GetByIDForUpdate(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound("contract")
	}
	return c, err
}

func authorize(c *models.Contract, actor uuid.UUID, permission string) error {
	switch rbac.Check(c, actor, permission) {
	case rbac.NotAParty:
		return ErrNotAParty
	case rbac.WrongSide:
		return ErrWrongSide
	}
	return nil
}

func requireActive(c *models.Contract) error {
	if !c.IsActive() {
		return ErrContractNotActive
	}
	return nil
}

// loadMilestone returns the milestone only if it belongs to the contract.
func loadMilestone(ctx context.Context, tx repositories.Repos, contractID, milestoneID uuid.UUID) (*models.Milestone, error) {
	m, err := tx.Milestones().GetByID(ctx, milestoneID)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && m.ContractID != contractID) {
		return nil, notFound("milestone")
	}
	return m, err
}

// lockRequest reads a payment request, locks its contract, then re-reads the
// request under the lock.
func (s *WorkflowService) lockRequest(ctx context.Context, tx repositories.Repos, id uuid.UUID) (*models.PaymentRequest, *models.Contract, error) {
	pr, err := tx.PaymentRequests().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, notFound("payment_request")
	}
	if err != nil {
		return nil, nil, err
	}
	c, err := s.lockContract(ctx, tx, pr.ContractID)
	if err != nil {
		return nil, nil, err
	}
	pr, err = tx.PaymentRequests().GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return pr, c, nil
}

func (s *WorkflowService) audit(ctx context.Context, tx repositories.Repos, contractID uuid.UUID, actor uuid.UUID, action, entityType string, entityID uuid.UUID, meta map[string]any) error {
	return tx.Audit().Log(ctx, models.AuditLog{
		ContractID:  contractID,
		ActorUserID: &actor,
		ActorType:   models.ActorTypeUser,
		Action:      action,
		EntityType:  entityType,
		EntityID:    &entityID,
		Meta:        meta,
	})
}

// transitionContract validates and applies a contract status change with
// audit logging.
func (s *WorkflowService) transitionContract(ctx context.Context, tx repositories.Repos, box *outbox, c *models.Contract, to string, actor uuid.UUID, eventType string, meta map[string]any) error {
	if !models.CanTransitionContract(c.Status, to) {
		return newError(KindInvalidState, ErrIllegalTransition.Code, "contract cannot move from %s to %s", c.Status, to)
	}

	from := c.Status
	if err := tx.Contracts().UpdateStatus(ctx, c.ID, from, to); err != nil {
		return err
	}
	c.Status = to

	if meta == nil {
		meta = map[string]any{}
	}
	meta["old_status"] = from
	meta["new_status"] = to
	if err := s.audit(ctx, tx, c.ID, actor, fmt.Sprintf("contract_status_%s_to_%s", from, to), models.EntityContract, c.ID, meta); err != nil {
		return err
	}

	box.add(c, eventType, map[string]any{"old_status": from, "new_status": to})
	return nil
}

// Amounts are stored as NUMERIC(18, 2).
var maxAmount = decimal.New(1, 16)

// validateAmount rejects amounts the storage column would round or refuse.
func validateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return ErrInvalidAmount
	case !amount.Equal(amount.Round(2)):
		return validation(ErrInvalidAmount.Code, "amount %s has more than 2 decimal places", amount.String())
	case amount.GreaterThanOrEqual(maxAmount):
		return validation(ErrInvalidAmount.Code, "amount %s exceeds the maximum of %s", amount.String(), maxAmount.Sub(decimal.New(1, -2)).StringFixed(2))
	}
	return nil
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ---- Contracts ----

// CreateContract opens a PENDING contract for an accepted proposal. The
// calling client must be the contract's client.
func (s *WorkflowService) CreateContract(ctx context.Context, actor uuid.UUID, in CreateContractInput) (*models.Contract, error) {
	in.Currency = normalizeCurrency(in.Currency)
	in.ProposalID = strings.TrimSpace(in.ProposalID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)

	if actor != in.ClientID {
		return nil, ErrWrongSide
	}
	if err := validateAmount(in.TotalAmount); err != nil {
		return nil, err
	}

	switch {
	case in.ProposalID == "" || in.ProjectID == "":
		return nil, validation("missing_reference", "project_id and proposal_id are required")
	case in.ClientID == in.FreelancerID:
		return nil, validation("same_party", "client and freelancer must be different users")
	case !currencyPattern.MatchString(in.Currency):
		return nil, validation("invalid_currency", "currency must be a 3-letter ISO code, got %q", in.Currency)
	case in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate):
		return nil, validation("invalid_dates", "end_date must not be before start_date")
	}

	var contract *models.Contract
	err := s.execute(ctx, "create_contract", func(tx repositories.Repos, box *outbox) error {
		for _, id := range []uuid.UUID{in.ClientID, in.FreelancerID} {
			u, err := tx.Users().GetByID(ctx, id)
			if errors.Is(err, repositories.ErrNotFound) {
				return notFound("user")
			}
			if err != nil {
				return err
			}
			if u.IsDeleted() {
				return validation("user_deleted", "user %s is deleted", id)
			}
		}

		if _, err := tx.Contracts().GetByProposalID(ctx, in.ProposalID); err == nil {
			return ErrProposalAlreadyContracted
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		c := &models.Contract{
			ProjectID:    in.ProjectID,
			ProposalID:   in.ProposalID,
			ClientID:     in.ClientID,
			FreelancerID: in.FreelancerID,
			Status:       models.ContractStatusPending,
			TotalAmount:  in.TotalAmount,
			Currency:     in.Currency,
			StartDate:    in.StartDate,
			EndDate:      in.EndDate,
		}
		if err := tx.Contracts().Create(ctx, c); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrProposalAlreadyContracted
			}
			return err
		}

		if err := s.audit(ctx, tx, c.ID, actor, "contract_created", models.EntityContract, c.ID, map[string]any{
			"proposal_id":  c.ProposalID,
			"total_amount": c.TotalAmount.String(),
			"currency":     c.Currency,
		}); err != nil {
			return err
		}

		box.add(c, events.EventContractCreated, map[string]any{"proposal_id": c.ProposalID})
		contract = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("proposal_id", contract.ProposalID),
	)
	return contract, nil
}

func (s *WorkflowService) AcceptContract(ctx context.Context, contractID, actor uuid.UUID) (*models.Contract, error) {
	return s.contractCommand(ctx, "accept_contract", contractID, actor, rbac.PermAcceptContract, func(tx repositories.Repos, box *outbox, c *models.Contract) error {
		return s.transitionContract(ctx, tx, box, c, models.ContractStatusActive, actor, events.EventContractAccepted, nil)
	})
}

func (s *WorkflowService) RejectContract(ctx context.Context, contractID, actor uuid.UUID) (*models.Contract, error) {
	return s.contractCommand(ctx, "reject_contract", contractID, actor, rbac.PermRejectContract, func(tx repositories.Repos, box *outbox, c *models.Contract) error {
		return s.transitionContract(ctx, tx, box, c, models.ContractStatusRejected, actor, events.EventContractRejected, nil)
	})
}

// CancelContract terminates an ACTIVE contract. Milestones and payment
// requests are kept as history.
func (s *WorkflowService) CancelContract(ctx context.Context, contractID, actor uuid.UUID, reason string) (*models.Contract, error) {
	return s.contractCommand(ctx, "cancel_contract", contractID, actor, rbac.PermCancelContract, func(tx repositories.Repos, box *outbox, c *models.Contract) error {
		if err := requireActive(c); err != nil {
			return err
		}
		var meta map[string]any
		if reason = strings.TrimSpace(reason); reason != "" {
			meta = map[string]any{"reason": reason}
		}
		return s.transitionContract(ctx, tx, box, c, models.ContractStatusCancelled, actor, events.EventContractCancelled, meta)
	})
}

// CompleteContract closes an ACTIVE contract once it has milestones and
// every one of them is PAID.
func (s *WorkflowService) CompleteContract(ctx context.Context, contractID, actor uuid.UUID) (*models.Contract, error) {
	return s.contractCommand(ctx, "complete_contract", contractID, actor, rbac.PermCompleteContract, func(tx repositories.Repos, box *outbox, c *models.Contract) error {
		if err := requireActive(c); err != nil {
			return err
		}
		milestones, err := tx.Milestones().ListByContract(ctx, c.ID)
		if err != nil {
			return err
		}
		if !rbac.AllMilestonesPaid(milestones) {
			return ErrMilestonesNotPaid
		}
		return s.transitionContract(ctx, tx, box, c, models.ContractStatusCompleted, actor, events.EventContractCompleted, map[string]any{"milestones": len(milestones)})
	})
}

func (s *WorkflowService) contractCommand(ctx context.Context, op string, contractID, actor uuid.UUID, permission string, fn func(tx repositories.Repos, box *outbox, c *models.Contract) error) (*models.Contract, error) {
	var contract *models.Contract
	err := s.execute(ctx, op, func(tx repositories.Repos, box *outbox) error {
		c, err := s.lockContract(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, permission); err != nil {
			return err
		}
		if err := fn(tx, box, c); err != nil {
			return err
		}
		contract = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("contract status changed",
		zap.String("operation", op),
		zap.String("contract_id", contract.ID.String()),
		zap.String("status", contract.Status),
	)
	return contract, nil
}

// ---- Milestones ----

// checkAllocation fails when adding amount to the other milestones of c
// would exceed the contract total.
func checkAllocation(ctx context.Context, tx repositories.Repos, c *models.Contract, amount decimal.Decimal, exclude *uuid.UUID) error {
	allocated, err := tx.Milestones().SumAmounts(ctx, c.ID, exclude)
	if err != nil {
		return err
	}
	if allocated.Add(amount).GreaterThan(c.TotalAmount) {
		return newError(KindValidation, ErrAmountExceeded.Code,
			"milestone amounts would total %s, contract total is %s", allocated.Add(amount).String(), c.TotalAmount.String())
	}
	return nil
}

func (s *WorkflowService) CreateMilestone(ctx context.Context, contractID, actor uuid.UUID, in CreateMilestoneInput) (*models.Milestone, error) {
	in.Title = strings.TrimSpace(in.Title)

	var milestone *models.Milestone
	err := s.execute(ctx, "create_milestone", func(tx repositories.Repos, box *outbox) error {
		c, err := s.lockContract(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermCreateMilestone); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		if in.Title == "" {
			return validation("title_required", "title is required")
		}
		if err := validateAmount(in.Amount); err != nil {
			return err
		}
		if err := checkAllocation(ctx, tx, c, in.Amount, nil); err != nil {
			return err
		}

		m := &models.Milestone{
			ContractID:  c.ID,
			Title:       in.Title,
			Description: in.Description,
			Amount:      in.Amount,
			DueDate:     in.DueDate,
			OrderIndex:  in.OrderIndex,
			Status:      models.MilestoneStatusPending,
		}
		if err := tx.Milestones().Create(ctx, m); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, c.ID, actor, "milestone_created", models.EntityMilestone, m.ID, map[string]any{
			"title":  m.Title,
			"amount": m.Amount.String(),
		}); err != nil {
			return err
		}

		box.add(c, events.EventMilestoneCreated, map[string]any{
			"milestone_id": m.ID.String(),
			"title":        m.Title,
			"amount":       m.Amount.String(),
		})
		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

// UpdateMilestone edits milestone metadata in any milestone status. The
// status itself is never changed here.
func (s *WorkflowService) UpdateMilestone(ctx context.Context, contractID, milestoneID, actor uuid.UUID, patch models.MilestonePatch) (*models.Milestone, error) {
	var milestone *models.Milestone
	err := s.execute(ctx, "update_milestone", func(tx repositories.Repos, box *outbox) error {
		c, err := s.lockContract(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermUpdateMilestone); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		m, err := loadMilestone(ctx, tx, c.ID, milestoneID)
		if err != nil {
			return err
		}

		if patch.IsEmpty() {
			return validation("empty_update", "no fields to update")
		}
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return validation("title_required", "title is required")
			}
			patch.Title = &title
		}
		if patch.Amount != nil {
			if err := validateAmount(*patch.Amount); err != nil {
				return err
			}
			if err := checkAllocation(ctx, tx, c, *patch.Amount, &m.ID); err != nil {
				return err
			}
		}

		status := m.Status
		patch.Apply(m)
		m.Status = status
		if err := tx.Milestones().UpdateDetails(ctx, m); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return notFound("milestone")
			}
			return err
		}

		changed := changedFields(patch)
		if err := s.audit(ctx, tx, c.ID, actor, "milestone_updated", models.EntityMilestone, m.ID, map[string]any{"fields": changed}); err != nil {
			return err
		}
		box.add(c, events.EventMilestoneUpdated, map[string]any{
			"milestone_id": m.ID.String(),
			"fields":       changed,
		})
		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

func changedFields(p models.MilestonePatch) []string {
	fields := []string{}
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil || p.ClearDescription {
		fields = append(fields, "description")
	}
	if p.Amount != nil {
		fields = append(fields, "amount")
	}
	if p.DueDate != nil || p.ClearDueDate {
		fields = append(fields, "due_date")
	}
	if p.OrderIndex != nil {
		fields = append(fields, "order_index")
	}
	return fields
}

// DeleteMilestone hard-deletes a milestone that has never been paid or
// billed. Milestones with payment request history stay as financial record.
func (s *WorkflowService) DeleteMilestone(ctx context.Context, contractID, milestoneID, actor uuid.UUID) error {
	return s.execute(ctx, "delete_milestone", func(tx repositories.Repos, box *outbox) error {
		c, err := s.lockContract(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermDeleteMilestone); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		m, err := loadMilestone(ctx, tx, c.ID, milestoneID)
		if err != nil {
			return err
		}
		if m.Status == models.MilestoneStatusPaid {
			return ErrMilestonePaid
		}

		pending, err := tx.PaymentRequests().HasPending(ctx, m.ID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPaymentRequestPending
		}
		history, err := tx.PaymentRequests().List(ctx, repositories.PaymentRequestFilter{MilestoneID: &m.ID, Limit: 1})
		if err != nil {
			return err
		}
		if len(history) > 0 {
			return ErrMilestoneHasRequests
		}

		if err := tx.Milestones().Delete(ctx, m.ID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return notFound("milestone")
			}
			return err
		}
		if err := s.audit(ctx, tx, c.ID, actor, "milestone_deleted", models.EntityMilestone, m.ID, map[string]any{
			"title":  m.Title,
			"status": m.Status,
			"amount": m.Amount.String(),
		}); err != nil {
			return err
		}
		box.add(c, events.EventMilestoneDeleted, map[string]any{"milestone_id": m.ID.String()})
		return nil
	})
}

// TransitionMilestoneStatus moves a milestone one step forward. PAID is
// reachable only through ApprovePaymentRequest.
func (s *WorkflowService) TransitionMilestoneStatus(ctx context.Context, contractID, milestoneID, actor uuid.UUID, target string) (*models.Milestone, error) {
	target = strings.ToUpper(strings.TrimSpace(target))

	var milestone *models.Milestone
	err := s.execute(ctx, "transition_milestone", func(tx repositories.Repos, box *outbox) error {
		c, err := s.lockContract(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermViewContract); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		m, err := loadMilestone(ctx, tx, c.ID, milestoneID)
		if err != nil {
			return err
		}

		if !models.IsValidMilestoneStatus(target) {
			return validation("invalid_status", "unknown milestone status %q", target)
		}
		if !models.CanTransitionMilestone(m.Status, target) {
			return newError(KindInvalidState, ErrIllegalTransition.Code, "milestone cannot move from %s to %s", m.Status, target)
		}
		perm, ok := rbac.MilestonePermission(target)
		if !ok {
			return ErrPaidRequiresApproval
		}
		if err := authorize(c, actor, perm); err != nil {
			return err
		}

		from := m.Status
		var completed *time.Time
		if target == models.MilestoneStatusCompleted {
			now := s.now()
			completed = &now
		}
		if err := tx.Milestones().UpdateStatus(ctx, m.ID, from, target, completed); err != nil {
			return err
		}
		m.Status = target
		if completed != nil {
			m.CompletedDate = completed
		}

		if err := s.audit(ctx, tx, c.ID, actor, fmt.Sprintf("milestone_status_%s_to_%s", from, target), models.EntityMilestone, m.ID, map[string]any{
			"old_status": from,
			"new_status": target,
		}); err != nil {
			return err
		}

		eventType := events.EventMilestoneStatusChanged
		if target == models.MilestoneStatusCompleted {
			eventType = events.EventMilestoneCompleted
		}
		box.add(c, eventType, map[string]any{
			"milestone_id": m.ID.String(),
			"old_status":   from,
			"new_status":   target,
		})
		milestone = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

// ---- Payment requests ----

// RequestPayment files a freelancer's claim against a COMPLETED milestone.
func (s *WorkflowService) RequestPayment(ctx context.Context, contractID, milestoneID, actor uuid.UUID, in RequestPaymentInput) (*models.PaymentRequest, error) {
	var request *models.PaymentRequest
	err := s.execute(ctx, "request_payment", func(tx repositories.Repos, box *outbox) error {
		c, err := s.lockContract(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermRequestPayment); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		m, err := loadMilestone(ctx, tx, c.ID, milestoneID)
		if err != nil {
			return err
		}
		if m.Status != models.MilestoneStatusCompleted {
			return newError(KindInvalidState, ErrMilestoneNotCompleted.Code, "milestone is %s, payment can only be requested when COMPLETED", m.Status)
		}

		pending, err := tx.PaymentRequests().HasPending(ctx, m.ID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPaymentRequestPending
		}

		if err := validateAmount(in.Amount); err != nil {
			return err
		}
		if in.Amount.GreaterThan(m.Amount) {
			return validation("amount_exceeds_milestone", "requested %s exceeds milestone amount %s", in.Amount.String(), m.Amount.String())
		}
		currency := normalizeCurrency(in.Currency)
		if currency == "" {
			currency = c.Currency
		}
		if currency != c.Currency {
			return ErrCurrencyMismatch
		}

		pr := &models.PaymentRequest{
			ContractID:  c.ID,
			MilestoneID: m.ID,
			Amount:      in.Amount,
			Currency:    currency,
			Description: in.Description,
			Status:      models.PaymentRequestStatusPending,
		}
		if err := tx.PaymentRequests().Create(ctx, pr); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrPaymentRequestPending
			}
			return err
		}

		if err := s.audit(ctx, tx, c.ID, actor, "payment_requested", models.EntityPaymentRequest, pr.ID, map[string]any{
			"milestone_id": m.ID.String(),
			"amount":       pr.Amount.String(),
			"currency":     pr.Currency,
		}); err != nil {
			return err
		}
		box.add(c, events.EventPaymentRequested, map[string]any{
			"payment_request_id": pr.ID.String(),
			"milestone_id":       m.ID.String(),
			"amount":             pr.Amount.String(),
			"currency":           pr.Currency,
		})
		request = pr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ApprovePaymentRequest approves a PENDING request and marks its milestone
// PAID in the same transaction. Either both writes commit or neither does.
func (s *WorkflowService) ApprovePaymentRequest(ctx context.Context, requestID, actor uuid.UUID) (*models.PaymentRequest, error) {
	var request *models.PaymentRequest
	err := s.execute(ctx, "approve_payment", func(tx repositories.Repos, box *outbox) error {
		pr, c, err := s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermApprovePayment); err != nil {
			return err
		}
		if pr.IsResolved() {
			return ErrAlreadyResolved
		}
		if err := requireActive(c); err != nil {
			return err
		}
		m, err := loadMilestone(ctx, tx, c.ID, pr.MilestoneID)
		if err != nil {
			return err
		}
		if !models.CanTransitionMilestone(m.Status, models.MilestoneStatusPaid) {
			return newError(KindInvalidState, ErrMilestoneNotCompleted.Code, "milestone is %s, expected COMPLETED", m.Status)
		}

		now := s.now()
		if err := tx.PaymentRequests().MarkApproved(ctx, pr.ID, now); err != nil {
			if errors.Is(err, repositories.ErrStaleState) {
				return ErrAlreadyResolved
			}
			return err
		}
		if err := tx.Milestones().UpdateStatus(ctx, m.ID, models.MilestoneStatusCompleted, models.MilestoneStatusPaid, nil); err != nil {
			return err
		}
		pr.Status = models.PaymentRequestStatusApproved
		pr.ApprovedAt = &now

		if err := s.audit(ctx, tx, c.ID, actor, "payment_approved", models.EntityPaymentRequest, pr.ID, map[string]any{
			"milestone_id": m.ID.String(),
			"amount":       pr.Amount.String(),
		}); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, c.ID, actor, "milestone_status_COMPLETED_to_PAID", models.EntityMilestone, m.ID, map[string]any{
			"old_status":         models.MilestoneStatusCompleted,
			"new_status":         models.MilestoneStatusPaid,
			"payment_request_id": pr.ID.String(),
		}); err != nil {
			return err
		}

		box.add(c, events.EventPaymentApproved, map[string]any{
			"payment_request_id": pr.ID.String(),
			"milestone_id":       m.ID.String(),
			"amount":             pr.Amount.String(),
			"currency":           pr.Currency,
			"milestone_status":   models.MilestoneStatusPaid,
		})
		request = pr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment request approved",
		zap.String("payment_request_id", request.ID.String()),
		zap.String("milestone_id", request.MilestoneID.String()),
	)
	return request, nil
}

// RejectPaymentRequest declines a PENDING request. The milestone stays
// COMPLETED so the freelancer can submit a new request.
func (s *WorkflowService) RejectPaymentRequest(ctx context.Context, requestID, actor uuid.UUID, reason string) (*models.PaymentRequest, error) {
	reason = strings.TrimSpace(reason)

	var request *models.PaymentRequest
	err := s.execute(ctx, "reject_payment", func(tx repositories.Repos, box *outbox) error {
		pr, c, err := s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermRejectPayment); err != nil {
			return err
		}
		if pr.IsResolved() {
			return ErrAlreadyResolved
		}
		if err := requireActive(c); err != nil {
			return err
		}
		if reason == "" {
			return validation("reason_required", "rejection reason is required")
		}

		now := s.now()
		if err := tx.PaymentRequests().MarkRejected(ctx, pr.ID, reason, now); err != nil {
			if errors.Is(err, repositories.ErrStaleState) {
				return ErrAlreadyResolved
			}
			return err
		}
		pr.Status = models.PaymentRequestStatusRejected
		pr.RejectionReason = &reason
		pr.RejectedAt = &now

		if err := s.audit(ctx, tx, c.ID, actor, "payment_rejected", models.EntityPaymentRequest, pr.ID, map[string]any{
			"milestone_id": pr.MilestoneID.String(),
			"reason":       reason,
		}); err != nil {
			return err
		}
		box.add(c, events.EventPaymentRejected, map[string]any{
			"payment_request_id": pr.ID.String(),
			"milestone_id":       pr.MilestoneID.String(),
			"reason":             reason,
		})
		request = pr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ProcessPayment records that the gateway was invoked for an APPROVED
// request. Method and transaction id are stored as given.
func (s *WorkflowService) ProcessPayment(ctx context.Context, requestID, actor uuid.UUID, in ProcessPaymentInput) (*models.Payment, error) {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.GatewayTransactionID = strings.TrimSpace(in.GatewayTransactionID)

	var payment *models.Payment
	err := s.execute(ctx, "process_payment", func(tx repositories.Repos, box *outbox) error {
		pr, c, err := s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := authorize(c, actor, rbac.PermProcessPayment); err != nil {
			return err
		}
		if pr.Status != models.PaymentRequestStatusApproved {
			return ErrRequestNotApproved
		}
		if in.PaymentMethod == "" || in.GatewayTransactionID == "" {
			return validation("gateway_reference_required", "payment_method and gateway_transaction_id are required")
		}

		p := &models.Payment{
			PaymentRequestID:     pr.ID,
			ContractID:           c.ID,
			Amount:               pr.Amount,
			Currency:             pr.Currency,
			PaymentMethod:        in.PaymentMethod,
			GatewayTransactionID: in.GatewayTransactionID,
			Status:               models.PaymentStatusProcessed,
		}
		if err := tx.Payments().Create(ctx, p); err != nil {
			return err
		}

		if err := s.audit(ctx, tx, c.ID, actor, "payment_processed", models.EntityPayment, p.ID, map[string]any{
			"payment_request_id":     pr.ID.String(),
			"payment_method":         p.PaymentMethod,
			"gateway_transaction_id": p.GatewayTransactionID,
		}); err != nil {
			return err
		}
		box.add(c, events.EventPaymentProcessed, map[string]any{
			"payment_id":         p.ID.String(),
			"payment_request_id": pr.ID.String(),
			"amount":             p.Amount.String(),
			"currency":           p.Currency,
		})
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}
