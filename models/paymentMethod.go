package models

import "time"

const (
	PaymentMethodCash           = "efectivo"
	PaymentMethodDebitCard      = "tarjeta_debito"
	PaymentMethodCreditCard     = "tarjeta_credito"
	PaymentMethodTransfer       = "transferencia"
	PaymentMethodCurrentAccount = "cuenta_corriente"
)

type PaymentMethod struct {
	ID             int       `gorm:"primary_key" json:"id"`
	Code           string    `gorm:"size:40;not null;uniqueIndex" json:"code"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	AffectsCash    bool      `gorm:"not null;default:false" json:"affects_cash"`
	AffectsAccount bool      `gorm:"not null;default:false" json:"affects_account"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func DefaultPaymentMethods() []PaymentMethod {
	active := true
	return []PaymentMethod{
		{Code: PaymentMethodCash, Name: "Efectivo", AffectsCash: true, IsActive: &active},
		{Code: PaymentMethodDebitCard, Name: "Tarjeta de débito", IsActive: &active},
		{Code: PaymentMethodCreditCard, Name: "Tarjeta de crédito", IsActive: &active},
		{Code: PaymentMethodTransfer, Name: "Transferencia", IsActive: &active},
		{Code: PaymentMethodCurrentAccount, Name: "Cuenta corriente", AffectsAccount: true, IsActive: &active},
	}
}
