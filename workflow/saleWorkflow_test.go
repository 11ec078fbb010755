package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t)
	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "2")})
	input.RequiresApproval = true
	sale := f.createSale(input)

	assert.Equal(t, models.SaleStatusPending, sale.Status)
	assert.True(t, f.stockOf(f.coffee).Equal(dec("10")), "pending sales do not move stock")

	_, err := f.ledger.Approve(f.ctx, sale.ID)
	var denied *models.PermissionDenied
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, PermissionApproveSales, denied.Permission)

	supervisor := utils.SetUserIdInContext(f.ctx, 2)
	supervisor = utils.SetPermissionsInContext(supervisor, []string{PermissionApproveSales})
	approved, err := f.ledger.Approve(supervisor, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, 2, *approved.ApprovedBy)

	_, err = f.ledger.Approve(supervisor, sale.ID)
	var transition *models.InvalidStateTransition
	assert.True(t, errors.As(err, &transition))

	completed, err := f.ledger.Complete(f.ctx, sale.ID, models.SalePaymentInput{
		Payments: []models.NewPayment{f.pay(models.PaymentMethodCash, "242")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusActive, completed.Status)
	assert.Equal(t, models.PaymentStatusPaid, completed.PaymentStatus)
	assert.True(t, f.stockOf(f.coffee).Equal(dec("8")))
	assert.True(t, f.registerStatement().ExpectedBalance.Equal(dec("1242")))
}

func TestRejectOnlyPending(t *testing.T) {
	f := newFixture(t)
	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")})
	input.RequiresApproval = true
	sale := f.createSale(input)

	_, err := f.ledger.Reject(f.ctx, sale.ID, models.RejectSaleInput{})
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation), "a reason is required")

	rejected, err := f.ledger.Reject(f.ctx, sale.ID, models.RejectSaleInput{Reason: "precio mal cargado"})
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "precio mal cargado", *rejected.RejectionReason)

	_, err = f.ledger.Complete(f.ctx, sale.ID, models.SalePaymentInput{})
	var transition *models.InvalidStateTransition
	assert.True(t, errors.As(err, &transition))

	active := f.createSale(f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}))
	_, err = f.ledger.Reject(f.ctx, active.ID, models.RejectSaleInput{Reason: "no"})
	assert.True(t, errors.As(err, &transition))
}

func TestPendingSaleTakesNoPayments(t *testing.T) {
	f := newFixture(t)
	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}, f.pay(models.PaymentMethodCash, "121"))
	input.RequiresApproval = true
	_, err := f.ledger.CreateSale(f.ctx, input)
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "payments", validation.Field)
}

func TestHeaderDiscount(t *testing.T) {
	f := newFixture(t)
	percent := models.DiscountTypePercent
	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "2")})
	input.DiscountType = &percent
	input.DiscountValue = dec("10")
	sale := f.createSale(input)

	assert.True(t, sale.Subtotal.Equal(dec("242")))
	assert.True(t, sale.DiscountAmount.Equal(dec("24.2")))
	assert.True(t, sale.Total.Equal(dec("217.8")))
	assert.True(t, sale.TaxAmount.Equal(dec("37.8")))
}

func TestPartialPayments(t *testing.T) {
	f := newFixture(t)
	sale := f.createSale(f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "2")}))
	assert.Equal(t, models.PaymentStatusPending, sale.PaymentStatus)

	sale, err := f.ledger.ApplySalePayment(f.ctx, sale.ID, models.SalePaymentInput{
		Payments: []models.NewPayment{f.pay(models.PaymentMethodTransfer, "100")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartial, sale.PaymentStatus)
	assert.True(t, sale.Outstanding().Equal(dec("142")))

	sale, err = f.ledger.ApplySalePayment(f.ctx, sale.ID, models.SalePaymentInput{
		Payments: []models.NewPayment{f.pay(models.PaymentMethodCash, "142")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, sale.PaymentStatus)

	_, err = f.ledger.ApplySalePayment(f.ctx, sale.ID, models.SalePaymentInput{
		Payments: []models.NewPayment{f.pay(models.PaymentMethodCash, "1")},
	})
	var validation *models.ValidationError
	assert.True(t, errors.As(err, &validation))

	stored, err := f.ledger.GetSale(f.ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 2)
	assert.True(t, stored.PaidTotal.Equal(dec("242")))
}

func TestCreateSaleRejectsUnknownReferences(t *testing.T) {
	f := newFixture(t)
	var validation *models.ValidationError

	_, err := f.ledger.CreateSale(f.ctx, f.sale("ticket", []models.NewSaleItem{{ProductId: 999, Quantity: dec("1")}}))
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "items[0].product_id", validation.Field)

	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")})
	input.BranchId = 999
	_, err = f.ledger.CreateSale(f.ctx, input)
	assert.True(t, errors.As(err, &validation))

	_, err = f.ledger.CreateSale(f.ctx, f.sale("ticket", nil))
	assert.True(t, errors.As(err, &validation))
}

func TestBudgetConversion(t *testing.T) {
	f := newFixture(t)
	input := f.sale("presupuesto", []models.NewSaleItem{f.item(f.coffee, "2")})
	input.CustomerId = &f.customer.ID
	budget := f.createSale(input)

	assert.Equal(t, models.SaleStatusActive, budget.Status)
	assert.True(t, budget.IsBudget())
	assert.True(t, f.stockOf(f.coffee).Equal(dec("10")), "budgets never move stock")

	_, err := f.ledger.ApplySalePayment(f.ctx, budget.ID, models.SalePaymentInput{
		Payments: []models.NewPayment{f.pay(models.PaymentMethodCash, "242")},
	})
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))

	_, err = f.ledger.ConvertBudget(f.ctx, budget.ID, models.ConvertBudgetInput{
		ReceiptType: "ticket",
		Payments:    []models.NewPayment{f.pay(models.PaymentMethodCash, "242")},
	})
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "cash_register_id", validation.Field)

	_, err = f.ledger.ConvertBudget(f.ctx, budget.ID, models.ConvertBudgetInput{ReceiptType: "presupuesto"})
	require.True(t, errors.As(err, &validation))

	sale, err := f.ledger.ConvertBudget(f.ctx, budget.ID, models.ConvertBudgetInput{
		ReceiptType:    "ticket",
		CashRegisterId: &f.register.ID,
		Payments:       []models.NewPayment{f.pay(models.PaymentMethodCash, "242")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.NumberingScopeSale, sale.NumberingScope)
	assert.Equal(t, int64(1), sale.ReceiptNumber)
	assert.Equal(t, "0003-00000001", sale.ReceiptNumberFormatted)
	require.NotNil(t, sale.ConvertedFromBudgetId)
	assert.Equal(t, budget.ID, *sale.ConvertedFromBudgetId)
	assert.Equal(t, budget.CustomerId, sale.CustomerId)
	assert.True(t, sale.Total.Equal(budget.Total))
	assert.Equal(t, models.PaymentStatusPaid, sale.PaymentStatus)
	assert.True(t, f.stockOf(f.coffee).Equal(dec("8")))

	stored, err := f.ledger.GetSale(f.ctx, budget.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ConvertedToSaleId)
	assert.Equal(t, sale.ID, *stored.ConvertedToSaleId)
	assert.True(t, stored.Total.Equal(dec("242")))

	_, err = f.ledger.ConvertBudget(f.ctx, budget.ID, models.ConvertBudgetInput{ReceiptType: "ticket"})
	assert.True(t, errors.As(err, &validation), "a budget converts once")
}

func TestConvertedBudgetCannotBeAnnulled(t *testing.T) {
	f := newFixture(t)
	budget := f.createSale(f.sale("presupuesto", []models.NewSaleItem{f.item(f.coffee, "1")}))
	sale, err := f.ledger.ConvertBudget(f.ctx, budget.ID, models.ConvertBudgetInput{
		ReceiptType:    "ticket",
		CashRegisterId: &f.register.ID,
		Payments:       []models.NewPayment{f.pay(models.PaymentMethodCash, "121")},
	})
	require.NoError(t, err)

	_, err = f.ledger.AnnulSale(f.ctx, budget.ID, models.AnnulSaleInput{Reason: "cliente desiste"})
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "sale_id", validation.Field)

	stored, err := f.ledger.GetSale(f.ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusActive, stored.Status)

	annulled, err := f.ledger.AnnulSale(f.ctx, sale.ID, models.AnnulSaleInput{Reason: "cliente desiste"})
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusAnnulled, annulled.Status)
	assert.True(t, f.stockOf(f.coffee).Equal(dec("10")))
}

func TestBudgetCannotRequireApproval(t *testing.T) {
	f := newFixture(t)
	input := f.sale("presupuesto", []models.NewSaleItem{f.item(f.coffee, "1")})
	input.RequiresApproval = true
	_, err := f.ledger.CreateSale(f.ctx, input)
	var validation *models.ValidationError
	assert.True(t, errors.As(err, &validation))
}
