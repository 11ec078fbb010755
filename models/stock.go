package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is the cached on-hand quantity of a product at a branch.
// It changes only together with a StockMovement insert.
type Stock struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ProductId    int             `gorm:"not null;uniqueIndex:uniq_stock,priority:1" json:"product_id"`
	BranchId     int             `gorm:"not null;uniqueIndex:uniq_stock,priority:2" json:"branch_id"`
	CurrentStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`
	MinStock     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_stock"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Stock) BelowMinimum() bool {
	return s.MinStock.IsPositive() && s.CurrentStock.LessThan(s.MinStock)
}

// StockMovement is one append-only entry of a product's stock ledger at a branch.
type StockMovement struct {
	ID                  int                `gorm:"primary_key" json:"id"`
	ProductId           int                `gorm:"not null;index:idx_stock_ledger,priority:1" json:"product_id"`
	BranchId            int                `gorm:"not null;index:idx_stock_ledger,priority:2" json:"branch_id"`
	Quantity            decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"quantity"`
	PreviousBalance     decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"previous_balance"`
	CurrentStockBalance decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"current_stock_balance"`
	Reason              string             `gorm:"size:255" json:"reason"`
	ReferenceType       StockReferenceType `gorm:"size:30;index:idx_stock_reference,priority:1" json:"reference_type"`
	ReferenceId         *int               `gorm:"index:idx_stock_reference,priority:2" json:"reference_id"`
	ReversesMovementId  *int               `gorm:"index" json:"reverses_movement_id"`
	CreatedBy           int                `json:"created_by"`
	CreatedAt           time.Time          `gorm:"autoCreateTime" json:"created_at"`

	// BelowMinimum is set on the returned movement when the new balance is under min_stock.
	BelowMinimum bool `gorm:"-" json:"below_minimum"`
}

type NewStockAdjustment struct {
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	BranchId  int             `json:"branch_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason" validate:"required,max=255"`
}

type MinimumStockInput struct {
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	BranchId  int             `json:"branch_id" validate:"required,gt=0"`
	MinStock  decimal.Decimal `json:"min_stock"`
}
