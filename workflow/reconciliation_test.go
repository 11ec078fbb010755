package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

func (f *fixture) busyDay() {
	input := f.sale("ticket",
		[]models.NewSaleItem{f.item(f.breakfast, "1"), f.item(f.coffee, "2")},
		f.pay(models.PaymentMethodCash, "200"),
		f.pay(models.PaymentMethodCurrentAccount, "242"),
	)
	input.CustomerId = &f.customer.ID
	sale := f.createSale(input)
	f.createSale(f.sale("ticket", []models.NewSaleItem{f.item(f.croissant, "4")}, f.pay(models.PaymentMethodCash, "300")))
	_, err := f.ledger.AnnulSale(f.ctx, sale.ID, models.AnnulSaleInput{Reason: "cliente arrepentido"})
	require.NoError(f.t, err)
}

func TestReconcileCleanLedgers(t *testing.T) {
	f := newFixture(t)
	f.busyDay()

	ctx := utils.SetCorrelationIdInContext(f.ctx, "recon-1")
	result, err := f.ledger.ReconcileLedgers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recon-1", result.CorrelationId)
	assert.Equal(t, 1, result.AccountsChecked)
	assert.Equal(t, 2, result.StocksChecked)
	assert.Equal(t, 1, result.RegistersChecked)
	assert.Zero(t, result.MismatchesWritten)
	assert.Empty(t, f.store.Reports())
}

func TestReconcileReportsAndRebuildsDrift(t *testing.T) {
	f := newFixture(t)
	f.busyDay()

	require.NoError(t, f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		account, err := tx.LockCurrentAccount(f.ctx, f.account.ID)
		if err != nil {
			return err
		}
		account.CurrentBalance = dec("-999")
		if err := tx.SaveCurrentAccount(f.ctx, account); err != nil {
			return err
		}
		stock, err := tx.LockStock(f.ctx, f.coffee.ID, f.branch.ID)
		if err != nil {
			return err
		}
		stock.CurrentStock = dec("3")
		if err := tx.SaveStock(f.ctx, stock); err != nil {
			return err
		}
		register, err := tx.LockCashRegister(f.ctx, f.register.ID)
		if err != nil {
			return err
		}
		register.TotalIncome = register.TotalIncome.Add(dec("1"))
		return tx.SaveCashRegister(f.ctx, register)
	}))

	result, err := f.ledger.ReconcileLedgers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.MismatchesWritten)

	reports := f.store.Reports()
	require.Len(t, reports, 3)
	checks := map[string]models.ReconciliationReport{}
	for _, r := range reports {
		checks[r.CheckType] = r
		assert.Equal(t, result.CorrelationId, r.CorrelationId)
	}
	require.Contains(t, checks, models.ReconciliationCheckAccountBalance)
	assert.Equal(t, "0", checks[models.ReconciliationCheckAccountBalance].Expected)
	assert.Equal(t, "-999", checks[models.ReconciliationCheckAccountBalance].Actual)
	require.Contains(t, checks, models.ReconciliationCheckStockBalance)
	assert.Equal(t, "10", checks[models.ReconciliationCheckStockBalance].Expected)
	assert.Contains(t, checks, models.ReconciliationCheckCashRegister)

	account, err := f.ledger.RebuildAccountBalance(f.ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.IsZero())

	stock, err := f.ledger.RebuildStock(f.ctx, f.coffee.ID, f.branch.ID)
	require.NoError(t, err)
	assert.True(t, stock.CurrentStock.Equal(dec("10")))

	result, err = f.ledger.ReconcileLedgers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MismatchesWritten, "only the register drift is left")
}
