package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

func TestCashAccountPaymentEntersRegister(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.AdjustAccountBalance(f.ctx, f.account.ID, models.AccountAdjustmentInput{Amount: dec("-300"), Description: "saldo anterior"})
	require.NoError(t, err)

	movement, err := f.ledger.RegisterAccountPayment(f.ctx, f.account.ID, models.AccountPaymentInput{
		Amount:          dec("200"),
		PaymentMethodId: f.methods[models.PaymentMethodCash],
		CashRegisterId:  &f.register.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OperationTypeSalida, movement.OperationType)
	assert.True(t, movement.BalanceAfter.Equal(dec("-100")))
	assert.Equal(t, "Cobro cuenta corriente Efectivo", movement.Description)

	register := f.registerStatement()
	require.Len(t, register.Movements, 1)
	assert.Equal(t, models.CashReferenceAccountPayment, register.Movements[0].ReferenceType)
	require.NotNil(t, register.Movements[0].ReferenceId)
	assert.Equal(t, movement.ID, *register.Movements[0].ReferenceId)
	assert.True(t, register.ExpectedBalance.Equal(dec("1200")))
}

func TestCashSupplierPaymentLeavesRegister(t *testing.T) {
	f := newFixture(t)
	supplier, err := f.ledger.CreateSupplier(f.ctx, models.NewContact{Name: "Molinos SA", TaxId: "30500000001"})
	require.NoError(t, err)
	account, err := f.ledger.OpenCurrentAccount(f.ctx, models.OpenCurrentAccountInput{OwnerType: models.OwnerTypeSupplier, OwnerId: supplier.ID})
	require.NoError(t, err)
	_, err = f.ledger.AdjustAccountBalance(f.ctx, account.ID, models.AccountAdjustmentInput{Amount: dec("-300"), Description: "factura 0001-00000042"})
	require.NoError(t, err)

	movement, err := f.ledger.RegisterAccountPayment(f.ctx, account.ID, models.AccountPaymentInput{
		Amount:          dec("200"),
		PaymentMethodId: f.methods[models.PaymentMethodCash],
		CashRegisterId:  &f.register.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OperationTypeSalida, movement.OperationType)
	assert.True(t, movement.BalanceAfter.Equal(dec("-100")), "the debt with the supplier shrinks")
	assert.Equal(t, "Pago a proveedor Efectivo", movement.Description)

	register := f.registerStatement()
	require.Len(t, register.Movements, 1)
	assert.Equal(t, models.OperationTypeSalida, register.Movements[0].OperationType)
	assert.Equal(t, models.CashReferenceAccountPayment, register.Movements[0].ReferenceType)
	assert.True(t, register.ExpectedBalance.Equal(dec("800")))

	paid, err := f.ledger.MovementTypeByCode(f.ctx, models.MovementTypeSupplierPayment)
	require.NoError(t, err)
	assert.Equal(t, paid.ID, register.Movements[0].MovementTypeId)
}

func TestCashAccountPaymentResolvesBranchRegister(t *testing.T) {
	f := newFixture(t)
	input := models.AccountPaymentInput{Amount: dec("50"), PaymentMethodId: f.methods[models.PaymentMethodCash]}

	_, err := f.ledger.RegisterAccountPayment(f.ctx, f.account.ID, input)
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "cash_register_id", validation.Field)

	ctx := utils.SetBranchIdInContext(f.ctx, f.branch.ID)
	_, err = f.ledger.RegisterAccountPayment(ctx, f.account.ID, input)
	require.NoError(t, err)
	assert.True(t, f.registerStatement().ExpectedBalance.Equal(dec("1050")))
	assert.True(t, f.accountStatement().CurrentBalance.Equal(dec("50")))
}

func TestAccountCannotBePaidOnAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.RegisterAccountPayment(f.ctx, f.account.ID, models.AccountPaymentInput{
		Amount:          dec("10"),
		PaymentMethodId: f.methods[models.PaymentMethodCurrentAccount],
	})
	var validation *models.ValidationError
	assert.True(t, errors.As(err, &validation))
	assert.Empty(t, f.accountStatement().Movements)
}

func TestNonCashAccountPaymentSkipsRegister(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.RegisterAccountPayment(f.ctx, f.account.ID, models.AccountPaymentInput{
		Amount:          dec("80"),
		PaymentMethodId: f.methods[models.PaymentMethodTransfer],
		Description:     "transferencia 0042",
	})
	require.NoError(t, err)
	assert.Empty(t, f.registerStatement().Movements)
	assert.True(t, f.accountStatement().CurrentBalance.Equal(dec("80")))
}

func TestAccountStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.AdjustAccountBalance(f.ctx, f.account.ID, models.AccountAdjustmentInput{Amount: dec("-100"), Description: "saldo"})
	require.NoError(t, err)

	_, err = f.ledger.ChangeAccountStatus(f.ctx, f.account.ID, models.AccountStatusClosed)
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation), "an account with balance cannot close")

	suspended, err := f.ledger.ChangeAccountStatus(f.ctx, f.account.ID, models.AccountStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusSuspended, suspended.Status)

	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}, f.pay(models.PaymentMethodCurrentAccount, "121"))
	input.CustomerId = &f.customer.ID
	_, err = f.ledger.CreateSale(f.ctx, input)
	assert.True(t, errors.As(err, &validation), "suspended accounts take no charges")

	_, err = f.ledger.AdjustAccountBalance(f.ctx, f.account.ID, models.AccountAdjustmentInput{Amount: dec("100"), Description: "condonación"})
	require.NoError(t, err)
	closed, err := f.ledger.ChangeAccountStatus(f.ctx, f.account.ID, models.AccountStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusClosed, closed.Status)

	_, err = f.ledger.ChangeAccountStatus(f.ctx, f.account.ID, models.AccountStatusActive)
	var transition *models.InvalidStateTransition
	assert.True(t, errors.As(err, &transition))
}

func TestOneAccountPerOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.OpenCurrentAccount(f.ctx, models.OpenCurrentAccountInput{OwnerType: models.OwnerTypeCustomer, OwnerId: f.customer.ID})
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))

	supplier, err := f.ledger.CreateSupplier(f.ctx, models.NewContact{Name: "Molinos SA", TaxId: "30500000001"})
	require.NoError(t, err)
	account, err := f.ledger.OpenCurrentAccount(f.ctx, models.OpenCurrentAccountInput{OwnerType: models.OwnerTypeSupplier, OwnerId: supplier.ID})
	require.NoError(t, err)
	assert.Equal(t, models.SupplierOwner(supplier.ID), account.Owner())
	assert.Nil(t, account.AvailableCredit())

	_, err = f.ledger.OpenCurrentAccount(f.ctx, models.OpenCurrentAccountInput{OwnerType: models.OwnerTypeSupplier, OwnerId: 999})
	assert.True(t, errors.As(err, &validation))
}

func TestAccountStatementShowsAvailableCredit(t *testing.T) {
	f := newFixture(t)
	statement := f.accountStatement()
	require.NotNil(t, statement.AvailableCredit)
	assert.Equal(t, "1000.00", *statement.AvailableCredit)
	assert.Empty(t, statement.Movements)
}
