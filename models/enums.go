package models

import (
	"encoding/json"
	"errors"
)

type SaleStatus string

const (
	SaleStatusPending  SaleStatus = "pending"
	SaleStatusApproved SaleStatus = "approved"
	SaleStatusActive   SaleStatus = "active"
	SaleStatusAnnulled SaleStatus = "annulled"
	SaleStatusRejected SaleStatus = "rejected"
)

// saleTransitions lists the legal next states for each sale state.
var saleTransitions = map[SaleStatus][]SaleStatus{
	SaleStatusPending:  {SaleStatusApproved, SaleStatusRejected},
	SaleStatusApproved: {SaleStatusActive},
	SaleStatusActive:   {SaleStatusAnnulled},
}

func (s SaleStatus) IsValid() bool {
	switch s {
	case SaleStatusPending, SaleStatusApproved, SaleStatusActive, SaleStatusAnnulled, SaleStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	for _, allowed := range saleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s *SaleStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("sale status must be string")
	}
	if !SaleStatus(str).IsValid() {
		return errors.New("invalid sale status")
	}
	*s = SaleStatus(str)
	return nil
}

// NumberingScope partitions receipt numbers within a branch.
type NumberingScope string

const (
	NumberingScopeSale   NumberingScope = "sale"
	NumberingScopeBudget NumberingScope = "presupuesto"
)

func (s NumberingScope) IsValid() bool {
	return s == NumberingScopeSale || s == NumberingScopeBudget
}

func (s *NumberingScope) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("numbering scope must be string")
	}
	if !NumberingScope(str).IsValid() {
		return errors.New("invalid numbering scope")
	}
	*s = NumberingScope(str)
	return nil
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type DiscountType string

const (
	DiscountTypePercent DiscountType = "P"
	DiscountTypeAmount  DiscountType = "A"
)

func (t *DiscountType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("discount type must be string")
	}
	switch str {
	case "P":
		*t = DiscountTypePercent
	case "A":
		*t = DiscountTypeAmount
	default:
		return errors.New("invalid discount type")
	}
	return nil
}

// OperationType is the direction of a cash or current-account movement.
type OperationType string

const (
	OperationTypeEntrada OperationType = "entrada"
	OperationTypeSalida  OperationType = "salida"
)

func (t OperationType) IsValid() bool {
	return t == OperationTypeEntrada || t == OperationTypeSalida
}

// Opposite returns the direction that cancels t.
func (t OperationType) Opposite() OperationType {
	if t == OperationTypeEntrada {
		return OperationTypeSalida
	}
	return OperationTypeEntrada
}

func (t *OperationType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("operation type must be string")
	}
	if !OperationType(str).IsValid() {
		return errors.New("invalid operation type")
	}
	*t = OperationType(str)
	return nil
}

type CashRegisterStatus string

const (
	CashRegisterStatusOpen   CashRegisterStatus = "open"
	CashRegisterStatusClosed CashRegisterStatus = "closed"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusActive:    {AccountStatusSuspended, AccountStatusClosed},
	AccountStatusSuspended: {AccountStatusActive, AccountStatusClosed},
}

func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusClosed:
		return true
	}
	return false
}

func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	for _, allowed := range accountTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s *AccountStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("account status must be string")
	}
	if !AccountStatus(str).IsValid() {
		return errors.New("invalid account status")
	}
	*s = AccountStatus(str)
	return nil
}

type OwnerType string

const (
	OwnerTypeCustomer OwnerType = "customer"
	OwnerTypeSupplier OwnerType = "supplier"
)

func (t *OwnerType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("owner type must be string")
	}
	switch OwnerType(str) {
	case OwnerTypeCustomer, OwnerTypeSupplier:
		*t = OwnerType(str)
	default:
		return errors.New("invalid owner type")
	}
	return nil
}

type StockReferenceType string

const (
	StockReferenceSale           StockReferenceType = "sale"
	StockReferenceSaleAnnulment  StockReferenceType = "sale_annulment"
	StockReferenceAdjustment     StockReferenceType = "adjustment"
	StockReferenceInitialBalance StockReferenceType = "initial"
)

type CashReferenceType string

const (
	CashReferenceSale     CashReferenceType = "sale"
	CashReferenceManual   CashReferenceType = "manual"
	CashReferenceOpening  CashReferenceType = "opening"
	CashReferenceAnnulled CashReferenceType = "sale_annulment"
	// CashReferenceAccountPayment links to the CurrentAccountMovement it collected.
	CashReferenceAccountPayment CashReferenceType = "account_payment"
)
