package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// System movement type codes.
const (
	MovementTypeSale                = "venta"
	MovementTypeSaleAnnulment       = "anulacion_venta"
	MovementTypeManualIncome        = "ingreso_manual"
	MovementTypeManualExpense       = "egreso_manual"
	MovementTypeExpense             = "gasto"
	MovementTypeAccountSale         = "venta_cuenta_corriente"
	MovementTypeAccountPayment      = "pago_cuenta_corriente"
	MovementTypeAccountAnnulment    = "anulacion_cuenta_corriente"
	MovementTypeAccountAdjustCharge = "ajuste_debito_cuenta_corriente"
	MovementTypeAccountAdjustCredit = "ajuste_credito_cuenta_corriente"
	MovementTypeAccountCollection   = "cobro_cuenta_corriente"
	MovementTypeSupplierPayment     = "pago_proveedor"
)

type MovementType struct {
	ID             int           `gorm:"primary_key" json:"id"`
	Code           string        `gorm:"size:50;not null;uniqueIndex" json:"code"`
	Name           string        `gorm:"size:100;not null" json:"name"`
	OperationType  OperationType `gorm:"size:10;not null" json:"operation_type"`
	AffectsCash    bool          `gorm:"not null;default:false" json:"affects_cash"`
	AffectsAccount bool          `gorm:"not null;default:false" json:"affects_account"`
	IsSystem       bool          `gorm:"not null;default:false" json:"is_system"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

// CashSignedAmount applies the cash ledger sign: entrada adds to the drawer, salida removes.
func CashSignedAmount(op OperationType, amount decimal.Decimal) decimal.Decimal {
	if op == OperationTypeSalida {
		return amount.Neg()
	}
	return amount
}

// AccountSignedAmount applies the current-account sign: an entrada is a charge
// entering the account and lowers the balance, a salida (payment) raises it.
func AccountSignedAmount(op OperationType, amount decimal.Decimal) decimal.Decimal {
	if op == OperationTypeEntrada {
		return amount.Neg()
	}
	return amount
}

func DefaultMovementTypes() []MovementType {
	return []MovementType{
		{Code: MovementTypeSale, Name: "Venta", OperationType: OperationTypeEntrada, AffectsCash: true, IsSystem: true},
		{Code: MovementTypeSaleAnnulment, Name: "Anulación de venta", OperationType: OperationTypeSalida, AffectsCash: true, IsSystem: true},
		{Code: MovementTypeManualIncome, Name: "Ingreso manual", OperationType: OperationTypeEntrada, AffectsCash: true, IsSystem: true},
		{Code: MovementTypeManualExpense, Name: "Egreso manual", OperationType: OperationTypeSalida, AffectsCash: true, IsSystem: true},
		{Code: MovementTypeExpense, Name: "Gasto", OperationType: OperationTypeSalida, AffectsCash: true, IsSystem: true},
		{Code: MovementTypeAccountSale, Name: "Venta en cuenta corriente", OperationType: OperationTypeEntrada, AffectsAccount: true, IsSystem: true},
		{Code: MovementTypeAccountPayment, Name: "Pago de cuenta corriente", OperationType: OperationTypeSalida, AffectsAccount: true, IsSystem: true},
		{Code: MovementTypeAccountAnnulment, Name: "Anulación en cuenta corriente", OperationType: OperationTypeSalida, AffectsAccount: true, IsSystem: true},
		{Code: MovementTypeAccountAdjustCharge, Name: "Ajuste débito", OperationType: OperationTypeEntrada, AffectsAccount: true, IsSystem: true},
		{Code: MovementTypeAccountAdjustCredit, Name: "Ajuste crédito", OperationType: OperationTypeSalida, AffectsAccount: true, IsSystem: true},
		{Code: MovementTypeAccountCollection, Name: "Cobro de cuenta corriente", OperationType: OperationTypeEntrada, AffectsCash: true, IsSystem: true},
		{Code: MovementTypeSupplierPayment, Name: "Pago a proveedor", OperationType: OperationTypeSalida, AffectsCash: true, IsSystem: true},
	}
}
