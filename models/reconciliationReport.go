package models

import "time"

const (
	ReconciliationCheckAccountBalance = "ACCOUNT_BALANCE"
	ReconciliationCheckStockBalance   = "STOCK_BALANCE"
	ReconciliationCheckCashRegister   = "CASH_REGISTER"
)

// ReconciliationReport is one drift finding between a cached balance and its ledger.
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"`
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Expected      string    `gorm:"size:64" json:"expected"`
	Actual        string    `gorm:"size:64" json:"actual"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
