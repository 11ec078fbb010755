package models

import (
	"gorm.io/gorm"
)

func allModels() []interface{} {
	return []interface{}{
		&Branch{}, &ReceiptTypeSetting{},
		&Product{}, &ComboComponent{}, &Stock{}, &StockMovement{},
		&Customer{}, &Supplier{},
		&PaymentMethod{}, &MovementType{},
		&Sale{}, &SaleItem{}, &SalePayment{},
		&CashRegister{}, &CashMovement{},
		&CurrentAccount{}, &CurrentAccountMovement{},
		&FiscalOutboxRecord{}, &IdempotencyKey{},
		&ReconciliationReport{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(allModels()...)
}
