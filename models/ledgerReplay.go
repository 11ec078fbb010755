package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LedgerMismatch describes the first ledger entry whose recorded balance
// disagrees with the replayed one.
type LedgerMismatch struct {
	MovementId int
	Field      string
	Expected   decimal.Decimal
	Actual     decimal.Decimal
}

func (e *LedgerMismatch) Error() string {
	return fmt.Sprintf("movement %d: %s expected %s got %s", e.MovementId, e.Field, e.Expected.String(), e.Actual.String())
}

// ReplayAccountBalance folds movements (in insertion order) from a zero balance.
// It checks every balance_before / balance_after link and returns the final balance.
func ReplayAccountBalance(movements []CurrentAccountMovement) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, m := range movements {
		if !m.BalanceBefore.Equal(balance) {
			return balance, &LedgerMismatch{MovementId: m.ID, Field: "balance_before", Expected: balance, Actual: m.BalanceBefore}
		}
		balance = balance.Add(m.SignedAmount())
		if !m.BalanceAfter.Equal(balance) {
			return balance, &LedgerMismatch{MovementId: m.ID, Field: "balance_after", Expected: balance, Actual: m.BalanceAfter}
		}
	}
	return balance, nil
}

// ReplayStock folds stock movements (in insertion order) from zero stock.
func ReplayStock(movements []StockMovement) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, m := range movements {
		if !m.PreviousBalance.Equal(balance) {
			return balance, &LedgerMismatch{MovementId: m.ID, Field: "previous_balance", Expected: balance, Actual: m.PreviousBalance}
		}
		balance = balance.Add(m.Quantity)
		if !m.CurrentStockBalance.Equal(balance) {
			return balance, &LedgerMismatch{MovementId: m.ID, Field: "current_stock_balance", Expected: balance, Actual: m.CurrentStockBalance}
		}
	}
	return balance, nil
}

// ReplayCashRegister rebuilds the register caches from its movements.
func ReplayCashRegister(register CashRegister, movements []CashMovement) CashRegister {
	replayed := register
	replayed.TotalIncome = decimal.Zero
	replayed.TotalExpenses = decimal.Zero
	replayed.ExpectedBalance = register.OpeningBalance
	for i := range movements {
		replayed.Apply(&movements[i])
	}
	return replayed
}
