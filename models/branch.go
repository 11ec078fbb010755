package models

import (
	"fmt"
	"time"
)

type Branch struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Address     string    `gorm:"type:text" json:"address"`
	PointOfSale int       `gorm:"not null;default:1" json:"point_of_sale"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b Branch) GetId() int {
	return b.ID
}

// ReceiptTypeSetting controls how receipts of one type are numbered and printed at a branch.
type ReceiptTypeSetting struct {
	ID             int            `gorm:"primary_key" json:"id"`
	BranchId       int            `gorm:"not null;uniqueIndex:uniq_receipt_setting,priority:1" json:"branch_id"`
	ReceiptType    string         `gorm:"size:30;not null;uniqueIndex:uniq_receipt_setting,priority:2" json:"receipt_type"`
	NumberingScope NumberingScope `gorm:"size:20;not null;default:'sale'" json:"numbering_scope"`
	Prefix         string         `gorm:"size:10" json:"prefix"`
	PadWidth       int            `gorm:"not null;default:8" json:"pad_width"`
	IsFiscal       bool           `gorm:"not null;default:false" json:"is_fiscal"`
	// FiscalCode is the authority's voucher type (1=A, 6=B, 11=C).
	FiscalCode int       `gorm:"not null;default:0" json:"fiscal_code"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FormatReceiptNumber renders n as printed on the receipt, e.g. 0003-00000106.
// Without a configured prefix the branch point of sale is used.
func FormatReceiptNumber(setting *ReceiptTypeSetting, pointOfSale int, n int64) string {
	prefix := fmt.Sprintf("%04d", pointOfSale)
	width := 8
	if setting != nil {
		if setting.Prefix != "" {
			prefix = setting.Prefix
		}
		if setting.PadWidth > 0 {
			width = setting.PadWidth
		}
	}
	return fmt.Sprintf("%s-%0*d", prefix, width, n)
}

type NewBranch struct {
	Name        string `json:"name" validate:"required,max=100"`
	Address     string `json:"address" validate:"max=500"`
	PointOfSale int    `json:"point_of_sale" validate:"omitempty,gt=0,lte=99999"`
}

type NewReceiptTypeSetting struct {
	BranchId       int            `json:"branch_id" validate:"required,gt=0"`
	ReceiptType    string         `json:"receipt_type" validate:"required,max=30"`
	NumberingScope NumberingScope `json:"numbering_scope"`
	Prefix         string         `json:"prefix" validate:"max=10"`
	PadWidth       int            `json:"pad_width" validate:"omitempty,gte=1,lte=12"`
	IsFiscal       bool           `json:"is_fiscal"`
	FiscalCode     int            `json:"fiscal_code" validate:"omitempty,gt=0"`
}
