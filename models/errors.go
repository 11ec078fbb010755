package models

import (
	"fmt"

	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
)

var ErrRecordNotFound = utils.ErrorRecordNotFound

// ValidationError is returned for malformed input or a precondition the caller can fix.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NumberingConflict is returned when a receipt number could not be reserved
// within the configured number of attempts.
type NumberingConflict struct {
	BranchId int
	Scope    NumberingScope
	Attempts int
}

func (e *NumberingConflict) Error() string {
	return fmt.Sprintf("could not allocate a %s receipt number for branch %d after %d attempts", e.Scope, e.BranchId, e.Attempts)
}

// InsufficientCredit is returned when a charge would push an account past its credit limit.
type InsufficientCredit struct {
	AccountId int
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCredit) Error() string {
	return fmt.Sprintf("insufficient credit on account %d: requested %s, available %s",
		e.AccountId, e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

// StockLockTimeout is returned when a stock row stayed locked past the lock wait timeout.
type StockLockTimeout struct {
	ProductId int
	BranchId  int
}

func (e *StockLockTimeout) Error() string {
	return fmt.Sprintf("timed out waiting for stock lock on product %d at branch %d", e.ProductId, e.BranchId)
}

// ConcurrentUpdate is returned when a unit of work lost a lock race with
// another writer and was rolled back. The caller may retry it unchanged.
type ConcurrentUpdate struct {
	Operation string
	Err       error
}

func (e *ConcurrentUpdate) Error() string {
	return fmt.Sprintf("%s conflicted with a concurrent update, retry: %v", e.Operation, e.Err)
}

func (e *ConcurrentUpdate) Unwrap() error { return e.Err }

// PermissionDenied is returned when the acting user lacks a permission code.
type PermissionDenied struct {
	Permission string
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("missing permission %s", e.Permission)
}

type InvalidStateTransition struct {
	Entity string
	Id     int
	From   string
	To     string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("%s %d cannot move from %s to %s", e.Entity, e.Id, e.From, e.To)
}

// FiscalProviderError wraps a failure reported by (or while reaching) the fiscal authority.
type FiscalProviderError struct {
	SaleId int
	Reason string
	Err    error
}

func (e *FiscalProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fiscal authorization failed for sale %d: %s: %v", e.SaleId, e.Reason, e.Err)
	}
	return fmt.Sprintf("fiscal authorization failed for sale %d: %s", e.SaleId, e.Reason)
}

func (e *FiscalProviderError) Unwrap() error {
	return e.Err
}
