package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountOwner is exactly one of a customer or a supplier.
type AccountOwner struct {
	kind OwnerType
	id   int
}

func CustomerOwner(customerId int) AccountOwner {
	return AccountOwner{kind: OwnerTypeCustomer, id: customerId}
}

func SupplierOwner(supplierId int) AccountOwner {
	return AccountOwner{kind: OwnerTypeSupplier, id: supplierId}
}

func (o AccountOwner) Type() OwnerType { return o.kind }
func (o AccountOwner) Id() int         { return o.id }

func (o AccountOwner) Validate() error {
	if o.kind != OwnerTypeCustomer && o.kind != OwnerTypeSupplier {
		return NewValidationError("owner_type", "must be customer or supplier")
	}
	if o.id <= 0 {
		return NewValidationError("owner_id", "must be positive")
	}
	return nil
}

func (o AccountOwner) String() string {
	return fmt.Sprintf("%s:%d", o.kind, o.id)
}

// CurrentAccount is a running balance with a customer or supplier.
// A negative balance means the owner owes the business.
type CurrentAccount struct {
	ID             int              `gorm:"primary_key" json:"id"`
	OwnerType      OwnerType        `gorm:"size:10;not null;uniqueIndex:uniq_account_owner,priority:1" json:"owner_type"`
	OwnerId        int              `gorm:"not null;uniqueIndex:uniq_account_owner,priority:2" json:"owner_id"`
	CreditLimit    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"credit_limit"`
	CurrentBalance decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	Status         AccountStatus    `gorm:"size:10;not null;default:'active'" json:"status"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *CurrentAccount) Owner() AccountOwner {
	return AccountOwner{kind: a.OwnerType, id: a.OwnerId}
}

// AvailableCredit is how much more can be charged. Nil means unlimited.
func (a *CurrentAccount) AvailableCredit() *decimal.Decimal {
	if a.CreditLimit == nil {
		return nil
	}
	available := a.CurrentBalance.Add(*a.CreditLimit)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return &available
}

// WithinCreditLimit reports whether balance respects balance >= -credit_limit.
func (a *CurrentAccount) WithinCreditLimit(balance decimal.Decimal) bool {
	if a.CreditLimit == nil {
		return true
	}
	return balance.GreaterThanOrEqual(a.CreditLimit.Neg())
}

// CurrentAccountMovement is an immutable ledger entry with the balance it produced.
type CurrentAccountMovement struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	CurrentAccountId   int             `gorm:"not null;index" json:"current_account_id"`
	MovementTypeId     int             `gorm:"not null" json:"movement_type_id"`
	OperationType      OperationType   `gorm:"size:10;not null" json:"operation_type"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	BalanceBefore      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_before"`
	BalanceAfter       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Description        string          `gorm:"size:255" json:"description"`
	SaleId             *int            `gorm:"index" json:"sale_id"`
	ReversesMovementId *int            `gorm:"index" json:"reverses_movement_id"`
	CreatedBy          int             `json:"created_by"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (m *CurrentAccountMovement) SignedAmount() decimal.Decimal {
	return AccountSignedAmount(m.OperationType, m.Amount)
}

type OpenCurrentAccountInput struct {
	OwnerType   OwnerType        `json:"owner_type" validate:"required,oneof=customer supplier"`
	OwnerId     int              `json:"owner_id" validate:"required,gt=0"`
	CreditLimit *decimal.Decimal `json:"credit_limit"`
}

func (input OpenCurrentAccountInput) Owner() AccountOwner {
	return AccountOwner{kind: input.OwnerType, id: input.OwnerId}
}

type AccountPaymentInput struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodId int             `json:"payment_method_id" validate:"required,gt=0"`
	CashRegisterId  *int            `json:"cash_register_id" validate:"omitempty,gt=0"`
	Description     string          `json:"description" validate:"max=255"`
}

type AccountAdjustmentInput struct {
	// Amount is signed: negative charges the account, positive credits it.
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=255"`
}
