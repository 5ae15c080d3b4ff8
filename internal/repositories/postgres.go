package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RetryPolicy controls retries of transactions that failed on a
// serialization conflict or a dropped connection.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type pgRepos struct {
	contracts       *ContractRepo
	milestones      *MilestoneRepo
	paymentRequests *PaymentRequestRepo
	payments        *PaymentRepo
	users           *UserRepo
	audit           *AuditRepo
}

func newPGRepos(db DBTX) *pgRepos {
	return &pgRepos{
		contracts:       NewContractRepo(db),
		milestones:      NewMilestoneRepo(db),
		paymentRequests: NewPaymentRequestRepo(db),
		payments:        NewPaymentRepo(db),
		users:           NewUserRepo(db),
		audit:           NewAuditRepo(db),
	}
}

func (r *pgRepos) Contracts() ContractRepository             { return r.contracts }
func (r *pgRepos) Milestones() MilestoneRepository           { return r.milestones }
func (r *pgRepos) PaymentRequests() PaymentRequestRepository { return r.paymentRequests }
func (r *pgRepos) Payments() PaymentRepository               { return r.payments }
func (r *pgRepos) Users() UserRepository                     { return r.users }
func (r *pgRepos) Audit() AuditRepository                    { return r.audit }

// PGStore is the PostgreSQL-backed Store.
type PGStore struct {
	*pgRepos
	pool  *pgxpool.Pool
	retry RetryPolicy
	log   *zap.Logger
}

func NewPGStore(pool *pgxpool.Pool, retry RetryPolicy, log *zap.Logger) *PGStore {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &PGStore{
		pgRepos: newPGRepos(pool),
		pool:    pool,
		retry:   retry,
		log:     log,
	}
}

var (
	writeTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	// Repeatable read gives every statement the snapshot taken at the first one.
	readTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Repos) error) error {
	return s.withRetry(ctx, writeTxOptions, fn)
}

func (s *PGStore) WithReadTx(ctx context.Context, fn func(tx Repos) error) error {
	return s.withRetry(ctx, readTxOptions, fn)
}

func (s *PGStore) withRetry(ctx context.Context, opts pgx.TxOptions, fn func(tx Repos) error) error {
	start := time.Now()
	var err error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.retry.backoff(attempt - 1)
			s.log.Warn("retrying transaction",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			metrics.IncrementTxRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = s.runTx(ctx, opts, fn)
		if err == nil || !IsRetryable(err) {
			break
		}
	}

	outcome := "committed"
	if err != nil {
		outcome = "rolled_back"
	}
	metrics.RecordTxDuration(outcome, time.Since(start))
	return err
}

func (s *PGStore) runTx(ctx context.Context, opts pgx.TxOptions, fn func(tx Repos) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	if err := fn(newPGRepos(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// IsRetryable reports whether err is a transient storage failure worth
// replaying the whole transaction for.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err)
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
