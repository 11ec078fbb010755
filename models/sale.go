package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID                     int            `gorm:"primary_key" json:"id"`
	BranchId               int            `gorm:"not null;uniqueIndex:uniq_sale_receipt,priority:1;index" json:"branch_id"`
	NumberingScope         NumberingScope `gorm:"size:20;not null;uniqueIndex:uniq_sale_receipt,priority:2" json:"numbering_scope"`
	ReceiptNumber          int64          `gorm:"not null;uniqueIndex:uniq_sale_receipt,priority:3" json:"receipt_number"`
	ReceiptNumberFormatted string         `gorm:"size:40;not null" json:"receipt_number_formatted"`
	ReceiptType            string         `gorm:"size:30;not null" json:"receipt_type"`
	CustomerId             *int           `gorm:"index" json:"customer_id"`
	SaleDate               time.Time      `gorm:"not null;index" json:"sale_date"`

	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountType   *DiscountType   `gorm:"size:1" json:"discount_type"`
	DiscountValue  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_value"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	PaidTotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_total"`
	ChangeAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"change_amount"`
	PaymentStatus  PaymentStatus   `gorm:"size:10;not null;default:'pending'" json:"payment_status"`
	Status         SaleStatus      `gorm:"size:10;not null;index" json:"status"`

	RequiresApproval bool `gorm:"not null;default:false" json:"requires_approval"`
	CashRegisterId   *int `gorm:"index" json:"cash_register_id"`
	CreatedBy        int  `json:"created_by"`

	ApprovedBy      *int       `json:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectedBy      *int       `json:"rejected_by"`
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectionReason *string    `gorm:"type:text" json:"rejection_reason"`
	AnnulledBy      *int       `json:"annulled_by"`
	AnnulledAt      *time.Time `json:"annulled_at"`
	AnnulmentReason *string    `gorm:"type:text" json:"annulment_reason"`

	ConvertedFromBudgetId *int       `gorm:"index" json:"converted_from_budget_id"`
	ConvertedToSaleId     *int       `gorm:"index" json:"converted_to_sale_id"`
	ConvertedAt           *time.Time `json:"converted_at"`

	Cae             *string    `gorm:"size:20" json:"cae"`
	CaeExpiresAt    *time.Time `json:"cae_expires_at"`
	FiscalAttempts  int        `gorm:"not null;default:0" json:"fiscal_attempts"`
	LastFiscalError *string    `gorm:"type:text" json:"last_fiscal_error"`

	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items    []SaleItem    `gorm:"foreignKey:SaleId" json:"items"`
	Payments []SalePayment `gorm:"foreignKey:SaleId" json:"payments"`
}

func (s Sale) GetId() int {
	return s.ID
}

func (s *Sale) IsBudget() bool {
	return s.NumberingScope == NumberingScopeBudget
}

// Outstanding is what is still owed on the sale.
func (s *Sale) Outstanding() decimal.Decimal {
	rest := s.Total.Sub(s.PaidTotal)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// RefreshPaymentStatus derives payment_status from paid_total.
func (s *Sale) RefreshPaymentStatus() {
	switch {
	case s.PaidTotal.IsZero() && s.Total.IsPositive():
		s.PaymentStatus = PaymentStatusPending
	case s.PaidTotal.LessThan(s.Total):
		s.PaymentStatus = PaymentStatusPartial
	default:
		s.PaymentStatus = PaymentStatusPaid
	}
}

// SaleItem is an immutable snapshot of a sold line.
type SaleItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	SaleId         int             `gorm:"not null;index" json:"sale_id"`
	ProductId      int             `gorm:"not null;index" json:"product_id"`
	ProductName    string          `gorm:"size:150" json:"product_name"`
	IsCombo        bool            `gorm:"not null;default:false" json:"is_combo"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	DiscountType   *DiscountType   `gorm:"size:1" json:"discount_type"`
	DiscountValue  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_value"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"tax_rate"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// SalePayment records how part of a sale was settled.
type SalePayment struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SaleId            int             `gorm:"not null;index" json:"sale_id"`
	PaymentMethodId   int             `gorm:"not null" json:"payment_method_id"`
	PaymentMethodCode string          `gorm:"size:40" json:"payment_method_code"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CashMovementId    *int            `json:"cash_movement_id"`
	AccountMovementId *int            `json:"account_movement_id"`
	CreatedBy         int             `json:"created_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewSaleItem struct {
	ProductId     int              `json:"product_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	DiscountType  *DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
}

type NewPayment struct {
	PaymentMethodId int             `json:"payment_method_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
}

type NewSale struct {
	BranchId         int             `json:"branch_id" validate:"required,gt=0"`
	NumberingScope   NumberingScope  `json:"numbering_scope"`
	ReceiptType      string          `json:"receipt_type" validate:"required,max=30"`
	CustomerId       *int            `json:"customer_id" validate:"omitempty,gt=0"`
	SaleDate         *time.Time      `json:"sale_date"`
	DiscountType     *DiscountType   `json:"discount_type"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	RequiresApproval bool            `json:"requires_approval"`
	CashRegisterId   *int            `json:"cash_register_id" validate:"omitempty,gt=0"`
	Notes            string          `json:"notes" validate:"max=2000"`
	Items            []NewSaleItem   `json:"items" validate:"required,min=1,dive"`
	Payments         []NewPayment    `json:"payments" validate:"dive"`
}

// ConvertBudgetInput carries what a conversion needs beyond the budget itself.
type ConvertBudgetInput struct {
	ReceiptType    string       `json:"receipt_type" validate:"omitempty,max=30"`
	CashRegisterId *int         `json:"cash_register_id" validate:"omitempty,gt=0"`
	Payments       []NewPayment `json:"payments" validate:"dive"`
}

// SalePaymentInput is used to pay an active sale or to complete an approved one.
type SalePaymentInput struct {
	CashRegisterId *int         `json:"cash_register_id" validate:"omitempty,gt=0"`
	Payments       []NewPayment `json:"payments" validate:"dive"`
}

type RejectSaleInput struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type AnnulSaleInput struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}
