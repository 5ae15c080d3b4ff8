package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned by guarded status updates whose expected
	// current status no longer matches the row.
	ErrStaleState = errors.New("record changed concurrently")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("duplicate record")
	// ErrReadOnly is returned by writes attempted inside WithReadTx.
	ErrReadOnly = errors.New("write in read-only transaction")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// NormalizeLimit clamps a page size into [1, 100], defaulting to 20.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

type ContractFilter struct {
	PartyID      *uuid.UUID // client or freelancer
	ClientID     *uuid.UUID
	FreelancerID *uuid.UUID
	Status       *string
	Limit        int
	Offset       int
}

type PaymentRequestFilter struct {
	PartyID     *uuid.UUID // through contracts
	ContractID  *uuid.UUID
	MilestoneID *uuid.UUID
	Status      *string
	Limit       int
	Offset      int
}

type ContractRepository interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	// GetByIDForUpdate reads the contract and, inside a transaction, holds
	// its row lock until commit. All writes under a contract go through it.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetByProposalID(ctx context.Context, proposalID string) (*models.Contract, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	List(ctx context.Context, f ContractFilter) ([]models.Contract, error)
}

type MilestoneRepository interface {
	Create(ctx context.Context, m *models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	// ListByContract returns milestones sorted by due date ascending, then
	// order index, then creation time.
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.Milestone, error)
	UpdateDetails(ctx context.Context, m *models.Milestone) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, completedDate *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	SumAmounts(ctx context.Context, contractID uuid.UUID, excludeID *uuid.UUID) (decimal.Decimal, error)
}

type PaymentRequestRepository interface {
	Create(ctx context.Context, r *models.PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	List(ctx context.Context, f PaymentRequestFilter) ([]models.PaymentRequest, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.PaymentRequest, error)
	HasPending(ctx context.Context, milestoneID uuid.UUID) (bool, error)
	MarkApproved(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRejected(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	ListByRequest(ctx context.Context, paymentRequestID uuid.UUID) ([]models.Payment, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
}

type AuditRepository interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByContract(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// Repos groups the repositories bound to one connection or transaction.
type Repos interface {
	Contracts() ContractRepository
	Milestones() MilestoneRepository
	PaymentRequests() PaymentRequestRepository
	Payments() PaymentRepository
	Users() UserRepository
	Audit() AuditRepository
}

// Store is the entity store. WithTx runs fn in one transaction: every
// write fn makes commits together or not at all. fn may be invoked more
// than once when the transaction is retried, so it must not have side
// effects outside the repositories it is given.
//
// WithReadTx runs fn in a read-only transaction that sees one snapshot of
// the data for its whole duration.
type Store interface {
	Repos
	WithTx(ctx context.Context, fn func(tx Repos) error) error
	WithReadTx(ctx context.Context, fn func(tx Repos) error) error
}
