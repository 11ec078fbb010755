package models

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	TaxId     string    `gorm:"size:20;index" json:"tax_id"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Email     string    `gorm:"size:100" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	TaxId     string    `gorm:"size:20;index" json:"tax_id"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Email     string    `gorm:"size:100" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewContact is the input for creating a customer or a supplier.
type NewContact struct {
	Name  string `json:"name" validate:"required,max=150"`
	TaxId string `json:"tax_id" validate:"omitempty,numeric,min=7,max=11"`
	Phone string `json:"phone" validate:"omitempty,max=30"`
	Email string `json:"email" validate:"omitempty,email"`
}

// Normalize validates the input and brings the phone number to E.164.
func (input *NewContact) Normalize() error {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	phone, err := utils.NormalizePhoneNumber(input.Phone)
	if err != nil {
		return NewValidationError("phone", "%v", err)
	}
	input.Phone = phone
	return nil
}

func (input NewContact) ToCustomer() *Customer {
	return &Customer{
		Name:     input.Name,
		TaxId:    input.TaxId,
		Phone:    input.Phone,
		Email:    input.Email,
		IsActive: utils.NewTrue(),
	}
}

func (input NewContact) ToSupplier() *Supplier {
	return &Supplier{
		Name:     input.Name,
		TaxId:    input.TaxId,
		Phone:    input.Phone,
		Email:    input.Email,
		IsActive: utils.NewTrue(),
	}
}
