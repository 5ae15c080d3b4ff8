// Package memstore is an in-memory repositories.Store. Transactions are
// serialized and run against a private copy of the data that replaces the
// committed copy only when fn succeeds.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/repositories"
	"github.com/google/uuid"
)

type state struct {
	contracts  map[uuid.UUID]models.Contract
	milestones map[uuid.UUID]models.Milestone
	requests   map[uuid.UUID]models.PaymentRequest
	payments   map[uuid.UUID]models.Payment
	users      map[uuid.UUID]models.User
	audit      []models.AuditLog
}

func newState() *state {
	return &state{
		contracts:  make(map[uuid.UUID]models.Contract),
		milestones: make(map[uuid.UUID]models.Milestone),
		requests:   make(map[uuid.UUID]models.PaymentRequest),
		payments:   make(map[uuid.UUID]models.Payment),
		users:      make(map[uuid.UUID]models.User),
	}
}

func cloneMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Records are stored by value; the pointer fields they carry are never
// mutated in place, so a shallow copy of each map is a full snapshot.
func (s *state) clone() *state {
	audit := make([]models.AuditLog, len(s.audit))
	copy(audit, s.audit)
	return &state{
		contracts:  cloneMap(s.contracts),
		milestones: cloneMap(s.milestones),
		requests:   cloneMap(s.requests),
		payments:   cloneMap(s.payments),
		users:      cloneMap(s.users),
		audit:      audit,
	}
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state

	faultMu sync.Mutex
	faults  map[string]error

	now func() time.Time
	*view
}

var _ repositories.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		st:     newState(),
		faults: make(map[string]error),
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.view = &view{s: s}
	return s
}

// SetClock replaces the time source used for generated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// InjectFault makes the next call to op (for example
// "milestones.UpdateStatus") fail with err.
func (s *Store) InjectFault(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) takeFault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repositories.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&view{s: s, tx: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// WithReadTx runs fn against a private snapshot of the committed state.
// Writes fail with repositories.ErrReadOnly and nothing is committed.
func (s *Store) WithReadTx(ctx context.Context, fn func(tx repositories.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snap := s.st.clone()
	s.mu.RUnlock()
	return fn(&view{s: s, tx: snap, readOnly: true})
}

// view implements repositories.Repos either on the committed state (tx ==
// nil, guarded by mu) or on a transaction's private copy.
type view struct {
	s        *Store
	tx       *state
	readOnly bool
}

func (v *view) run(op string, write bool, fn func(st *state) error) error {
	if err := v.s.takeFault(op); err != nil {
		return err
	}
	if v.tx != nil {
		if write && v.readOnly {
			return repositories.ErrReadOnly
		}
		return fn(v.tx)
	}
	if write {
		v.s.txMu.Lock()
		defer v.s.txMu.Unlock()
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	} else {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	return fn(v.s.st)
}

func (v *view) Contracts() repositories.ContractRepository             { return contractRepo{v} }
func (v *view) Milestones() repositories.MilestoneRepository           { return milestoneRepo{v} }
func (v *view) PaymentRequests() repositories.PaymentRequestRepository { return paymentRequestRepo{v} }
func (v *view) Payments() repositories.PaymentRepository               { return paymentRepo{v} }
func (v *view) Users() repositories.UserRepository                     { return userRepo{v} }
func (v *view) Audit() repositories.AuditRepository                    { return auditRepo{v} }

func page[T any](items []T, limit, offset int) []T {
	limit = repositories.NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
