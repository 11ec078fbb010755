package utils

import (
	"github.com/shopspring/decimal"
)

var decimalOneHundred = decimal.NewFromInt(100)

// CalculateTaxAmount returns the tax portion of amount at rate percent.
func CalculateTaxAmount(amount decimal.Decimal, rate decimal.Decimal, isTaxInclusive bool) decimal.Decimal {
	if !rate.IsPositive() || amount.IsZero() {
		return decimal.Zero
	}
	if isTaxInclusive {
		// Tax-inclusive: (amount / (100 + rate)) * rate
		return amount.Mul(rate).DivRound(rate.Add(decimalOneHundred), 4)
	}
	// Tax-exclusive: (amount / 100) * rate
	return amount.Mul(rate).DivRound(decimalOneHundred, 4)
}

// CalculateDiscountAmount resolves a discount against subTotal.
// discountType "P" means percent of subTotal, anything else is a fixed amount.
// The result is never larger than subTotal.
func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {
	if !discount.IsPositive() || !subTotal.IsPositive() {
		return decimal.Zero
	}

	var discountAmount decimal.Decimal
	if discountType == "P" {
		discountAmount = subTotal.Mul(discount).DivRound(decimalOneHundred, 4)
	} else {
		discountAmount = discount
	}

	if discountAmount.GreaterThan(subTotal) {
		return subTotal
	}
	return discountAmount
}
