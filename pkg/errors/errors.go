package errors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidState        = errors.New("invalid redemption state")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrPartialCommit       = errors.New("balance committed but ledger write failed")
	ErrLedgerLookup        = errors.New("ledger lookup failed")
	ErrLedgerWrite         = errors.New("ledger write failed")
	ErrRequestNotFound     = errors.New("redemption request not found")
	ErrBalanceNotFound     = errors.New("user balance not found")
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")
	ErrRequestLocked       = errors.New("redemption request is being processed")
	ErrInvalidTarget       = errors.New("invalid transition target")
	ErrInvalidLedgerType   = errors.New("invalid ledger entry type")
	ErrInvalidLedgerStatus = errors.New("invalid ledger entry status")
	ErrNilLedgerEntry      = errors.New("ledger entry is nil")
	ErrNilSession          = errors.New("session is nil")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidToken        = errors.New("invalid session token")
	ErrAdminNotFound       = errors.New("admin not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidInput        = errors.New("invalid input")
)

// InvalidStateError is returned when a transition is attempted on a request
// that is no longer pending.
type InvalidStateError struct {
	RequestID uuid.UUID
	Current   string
	Target    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("redemption %s is %s, cannot move to %s", e.RequestID, e.Current, e.Target)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// InsufficientBalanceError carries the observed and required amounts.
type InsufficientBalanceError struct {
	UserID    uuid.UUID
	Available int64
	Required  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: available %d, required %d", e.UserID, e.Available, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

type NotAuthorizedError struct {
	Operation string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("not authorized to %s", e.Operation)
}

func (e *NotAuthorizedError) Unwrap() error {
	return ErrNotAuthorized
}

// PartialCommitError means the balance change and status write are durable
// but the audit ledger entry is missing. Needs manual reconciliation.
type PartialCommitError struct {
	RequestID uuid.UUID
	UserID    uuid.UUID
	Points    int64
	Cause     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("redemption %s: %d points deducted from %s but ledger write failed: %v", e.RequestID, e.Points, e.UserID, e.Cause)
}

func (e *PartialCommitError) Unwrap() []error {
	return []error{ErrPartialCommit, e.Cause}
}

type LedgerLookupError struct {
	ReferenceID uuid.UUID
	Err         error
}

func (e *LedgerLookupError) Error() string {
	return fmt.Sprintf("ledger lookup for reference %s: %v", e.ReferenceID, e.Err)
}

func (e *LedgerLookupError) Unwrap() []error {
	return []error{ErrLedgerLookup, e.Err}
}

type LedgerWriteError struct {
	ReferenceID uuid.UUID
	Op          string
	Err         error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger %s for reference %s: %v", e.Op, e.ReferenceID, e.Err)
}

func (e *LedgerWriteError) Unwrap() []error {
	return []error{ErrLedgerWrite, e.Err}
}

// IsRetryable reports whether the caller may safely replay the operation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrPartialCommit),
		errors.Is(err, ErrRequestNotFound),
		errors.Is(err, ErrBalanceNotFound),
		errors.Is(err, ErrInvalidTarget),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrInvalidInput):
		return false
	}
	return true
}
