package services

import (
	"errors"
	"fmt"
)

// Error kinds. The HTTP layer maps each to a status code.
const (
	KindForbiddenActor  = "forbidden_actor"
	KindInvalidState    = "invalid_state"
	KindNotFound        = "not_found"
	KindAlreadyResolved = "already_resolved"
	KindValidation      = "validation"
)

// Error is a business rule violation. Storage failures are never wrapped in it.
type Error struct {
	Kind    string
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so callers can compare against the sentinels below
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a business error in err's chain, or "".
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of a business error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var (
	ErrNotAParty       = &Error{Kind: KindForbiddenActor, Code: "not_a_party", Message: "caller is not a party to this contract"}
	ErrWrongSide       = &Error{Kind: KindForbiddenActor, Code: "wrong_side", Message: "operation not permitted for caller's role on this contract"}
	ErrAlreadyResolved = &Error{Kind: KindAlreadyResolved, Code: "already_resolved", Message: "payment request already resolved"}

	ErrContractNotActive         = &Error{Kind: KindInvalidState, Code: "contract_not_active", Message: "contract is not active"}
	ErrIllegalTransition         = &Error{Kind: KindInvalidState, Code: "illegal_transition", Message: "illegal status transition"}
	ErrMilestoneNotCompleted     = &Error{Kind: KindInvalidState, Code: "milestone_not_completed", Message: "milestone is not completed"}
	ErrPaidRequiresApproval      = &Error{Kind: KindInvalidState, Code: "paid_requires_approval", Message: "milestone can only become PAID by approving a payment request"}
	ErrPaymentRequestPending     = &Error{Kind: KindInvalidState, Code: "payment_request_pending", Message: "milestone already has a pending payment request"}
	ErrMilestonePaid             = &Error{Kind: KindInvalidState, Code: "milestone_paid", Message: "milestone is paid"}
	ErrMilestoneHasRequests      = &Error{Kind: KindInvalidState, Code: "milestone_has_payment_requests", Message: "milestone has payment request history"}
	ErrMilestonesNotPaid         = &Error{Kind: KindInvalidState, Code: "milestones_not_paid", Message: "contract needs at least one milestone and all milestones paid"}
	ErrProposalAlreadyContracted = &Error{Kind: KindInvalidState, Code: "proposal_already_contracted", Message: "proposal already has a contract"}
	ErrRequestNotApproved        = &Error{Kind: KindInvalidState, Code: "payment_request_not_approved", Message: "payment request is not approved"}
	ErrConcurrentUpdate          = &Error{Kind: KindInvalidState, Code: "concurrent_update", Message: "record changed concurrently, reload and retry"}

	ErrInvalidAmount    = &Error{Kind: KindValidation, Code: "invalid_amount", Message: "amount must be greater than zero"}
	ErrCurrencyMismatch = &Error{Kind: KindValidation, Code: "currency_mismatch", Message: "currency must match the contract currency"}
	ErrAmountExceeded   = &Error{Kind: KindValidation, Code: "amount_exceeds_total", Message: "milestone amounts exceed the contract total"}
)

func notFound(entity string) *Error {
	return newError(KindNotFound, entity+"_not_found", "%s not found", entity)
}

func validation(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}
