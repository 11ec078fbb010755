package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:150;not null" json:"name"`
	Sku       string          `gorm:"size:64;not null;uniqueIndex" json:"sku"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(7,4);default:21" json:"tax_rate"`
	IsCombo   bool            `gorm:"not null;default:false" json:"is_combo"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Components []ComboComponent `gorm:"foreignKey:ComboId" json:"components,omitempty"`
}

// ComboComponent is one stock-tracked product inside a combo.
type ComboComponent struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ComboId     int             `gorm:"not null;uniqueIndex:uniq_combo_component,priority:1" json:"combo_id"`
	ComponentId int             `gorm:"not null;uniqueIndex:uniq_combo_component,priority:2" json:"component_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
}

// StockDeltas returns the per-product stock change of selling qty units of p.
// Combos expand into their components; plain products move themselves.
func (p *Product) StockDeltas(qty decimal.Decimal) map[int]decimal.Decimal {
	deltas := make(map[int]decimal.Decimal)
	if p.IsCombo {
		for _, c := range p.Components {
			deltas[c.ComponentId] = deltas[c.ComponentId].Sub(c.Quantity.Mul(qty))
		}
		return deltas
	}
	deltas[p.ID] = qty.Neg()
	return deltas
}

type NewComboComponent struct {
	ComponentId int             `json:"component_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type NewProduct struct {
	Name       string              `json:"name" validate:"required,max=150"`
	Sku        string              `json:"sku" validate:"required,max=64"`
	Price      decimal.Decimal     `json:"price"`
	TaxRate    *decimal.Decimal    `json:"tax_rate"`
	IsCombo    bool                `json:"is_combo"`
	Components []NewComboComponent `json:"components" validate:"dive"`
}
