package models

import (
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
)

type SaleTotals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

func validateDiscount(field string, discountType *DiscountType, value decimal.Decimal) error {
	if value.IsNegative() {
		return NewValidationError(field, "discount cannot be negative")
	}
	if discountType != nil && *discountType == DiscountTypePercent && value.GreaterThan(decimal.NewFromInt(100)) {
		return NewValidationError(field, "percent discount cannot exceed 100")
	}
	return nil
}

func discountTypeCode(discountType *DiscountType) string {
	if discountType == nil {
		return string(DiscountTypeAmount)
	}
	return string(*discountType)
}

// PriceSaleItem snapshots product into a sale line and applies the line discount.
// Prices are tax inclusive.
func PriceSaleItem(product *Product, input NewSaleItem) (SaleItem, error) {
	if !input.Quantity.IsPositive() {
		return SaleItem{}, NewValidationError("quantity", "must be greater than zero for product %d", product.ID)
	}
	unitPrice := product.Price
	if input.UnitPrice != nil {
		unitPrice = *input.UnitPrice
	}
	if unitPrice.IsNegative() {
		return SaleItem{}, NewValidationError("unit_price", "cannot be negative for product %d", product.ID)
	}
	if err := validateDiscount("items.discount_value", input.DiscountType, input.DiscountValue); err != nil {
		return SaleItem{}, err
	}

	subtotal := input.Quantity.Mul(unitPrice).Round(4)
	discountAmount := utils.CalculateDiscountAmount(subtotal, input.DiscountValue, discountTypeCode(input.DiscountType))

	return SaleItem{
		ProductId:      product.ID,
		ProductName:    product.Name,
		IsCombo:        product.IsCombo,
		Quantity:       input.Quantity,
		UnitPrice:      unitPrice,
		DiscountType:   input.DiscountType,
		DiscountValue:  input.DiscountValue,
		DiscountAmount: discountAmount,
		Subtotal:       subtotal,
		Total:          subtotal.Sub(discountAmount),
		TaxRate:        product.TaxRate,
	}, nil
}

// ComputeSaleTotals applies the header discount over the line totals and
// spreads the inclusive tax over every line. items are updated in place.
//
// total = sum(line totals) - header discount, never below zero. A percent
// header discount is taken from the pre-discount subtotal.
func ComputeSaleTotals(items []SaleItem, discountType *DiscountType, discountValue decimal.Decimal) (SaleTotals, error) {
	if err := validateDiscount("discount_value", discountType, discountValue); err != nil {
		return SaleTotals{}, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total)
	}
	discountAmount := utils.CalculateDiscountAmount(subtotal, discountValue, discountTypeCode(discountType))
	total := subtotal.Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	taxAmount := decimal.Zero
	for i := range items {
		share := items[i].Total
		if subtotal.IsPositive() && !discountAmount.IsZero() {
			share = items[i].Total.Mul(total).DivRound(subtotal, 4)
		}
		items[i].TaxAmount = utils.CalculateTaxAmount(share, items[i].TaxRate, true)
		taxAmount = taxAmount.Add(items[i].TaxAmount)
	}

	return SaleTotals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		Total:          total,
	}, nil
}
