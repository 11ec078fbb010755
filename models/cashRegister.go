package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashRegister is one cash session of a branch.
// TotalIncome, TotalExpenses and ExpectedBalance are caches of its movements.
type CashRegister struct {
	ID              int                `gorm:"primary_key" json:"id"`
	BranchId        int                `gorm:"not null;index:idx_register_branch_status,priority:1" json:"branch_id"`
	Status          CashRegisterStatus `gorm:"size:10;not null;index:idx_register_branch_status,priority:2" json:"status"`
	OpenedBy        int                `json:"opened_by"`
	OpenedAt        time.Time          `gorm:"not null" json:"opened_at"`
	OpeningBalance  decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	TotalIncome     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_income"`
	TotalExpenses   decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_expenses"`
	ExpectedBalance decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"expected_balance"`
	ClosedBy        *int               `json:"closed_by"`
	ClosedAt        *time.Time         `json:"closed_at"`
	ClosingBalance  *decimal.Decimal   `gorm:"type:decimal(20,4)" json:"closing_balance"`
	Difference      *decimal.Decimal   `gorm:"type:decimal(20,4)" json:"difference"`
	Notes           string             `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r CashRegister) GetId() int {
	return r.ID
}

func (r *CashRegister) IsOpen() bool {
	return r.Status == CashRegisterStatusOpen
}

// Apply folds one movement into the register caches.
func (r *CashRegister) Apply(m *CashMovement) {
	if m.OperationType == OperationTypeSalida {
		r.TotalExpenses = r.TotalExpenses.Add(m.Amount)
	} else {
		r.TotalIncome = r.TotalIncome.Add(m.Amount)
	}
	r.ExpectedBalance = r.OpeningBalance.Add(r.TotalIncome).Sub(r.TotalExpenses)
}

// CashMovement is an immutable entry in a cash register.
type CashMovement struct {
	ID                 int               `gorm:"primary_key" json:"id"`
	CashRegisterId     int               `gorm:"not null;index" json:"cash_register_id"`
	MovementTypeId     int               `gorm:"not null" json:"movement_type_id"`
	OperationType      OperationType     `gorm:"size:10;not null" json:"operation_type"`
	Amount             decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description        string            `gorm:"size:255" json:"description"`
	ReferenceType      CashReferenceType `gorm:"size:30;index:idx_cash_reference,priority:1" json:"reference_type"`
	ReferenceId        *int              `gorm:"index:idx_cash_reference,priority:2" json:"reference_id"`
	ReversesMovementId *int              `gorm:"index" json:"reverses_movement_id"`
	CreatedBy          int               `json:"created_by"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (m *CashMovement) SignedAmount() decimal.Decimal {
	return CashSignedAmount(m.OperationType, m.Amount)
}

type OpenCashRegisterInput struct {
	BranchId       int             `json:"branch_id" validate:"required,gt=0"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Notes          string          `json:"notes" validate:"max=2000"`
}

type NewCashMovement struct {
	MovementTypeId int             `json:"movement_type_id" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=255"`
}

type CloseCashRegisterInput struct {
	DeclaredBalance decimal.Decimal `json:"declared_balance"`
	Notes           string          `json:"notes" validate:"max=2000"`
}
