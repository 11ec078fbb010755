package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func TestOneOpenRegisterPerBranch(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.OpenCashRegister(f.ctx, models.OpenCashRegisterInput{BranchId: f.branch.ID, OpeningBalance: dec("0")})
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "branch_id", validation.Field)

	_, err = f.ledger.OpenCashRegister(f.ctx, models.OpenCashRegisterInput{BranchId: f.branch.ID, OpeningBalance: dec("-1")})
	assert.True(t, errors.As(err, &validation))
}

func TestManualMovementsAndClose(t *testing.T) {
	f := newFixture(t)
	income, err := f.ledger.MovementTypeByCode(f.ctx, models.MovementTypeManualIncome)
	require.NoError(t, err)
	expense, err := f.ledger.MovementTypeByCode(f.ctx, models.MovementTypeManualExpense)
	require.NoError(t, err)

	_, err = f.ledger.RegisterCashMovement(f.ctx, f.register.ID, models.NewCashMovement{MovementTypeId: income.ID, Amount: dec("50"), Description: "cambio"})
	require.NoError(t, err)
	_, err = f.ledger.RegisterCashMovement(f.ctx, f.register.ID, models.NewCashMovement{MovementTypeId: expense.ID, Amount: dec("30"), Description: "flete"})
	require.NoError(t, err)

	statement := f.registerStatement()
	assert.True(t, statement.TotalIncome.Equal(dec("50")))
	assert.True(t, statement.TotalExpenses.Equal(dec("30")))
	assert.True(t, statement.ExpectedBalance.Equal(dec("1020")))

	closed, err := f.ledger.CloseCashRegister(f.ctx, f.register.ID, models.CloseCashRegisterInput{DeclaredBalance: dec("1000"), Notes: "faltante"})
	require.NoError(t, err)
	assert.Equal(t, models.CashRegisterStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosingBalance)
	require.NotNil(t, closed.Difference)
	assert.True(t, closed.ClosingBalance.Equal(dec("1000")))
	assert.True(t, closed.Difference.Equal(dec("-20")))
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, cashierId, *closed.ClosedBy)

	_, err = f.ledger.CloseCashRegister(f.ctx, f.register.ID, models.CloseCashRegisterInput{DeclaredBalance: dec("1000")})
	var transition *models.InvalidStateTransition
	assert.True(t, errors.As(err, &transition))

	_, err = f.ledger.RegisterCashMovement(f.ctx, f.register.ID, models.NewCashMovement{MovementTypeId: income.ID, Amount: dec("1")})
	var validation *models.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestSystemMovementTypesAreNotManual(t *testing.T) {
	f := newFixture(t)
	for _, code := range []string{models.MovementTypeSale, models.MovementTypeSaleAnnulment, models.MovementTypeAccountCollection, models.MovementTypeSupplierPayment, models.MovementTypeAccountSale} {
		mt, err := f.ledger.MovementTypeByCode(f.ctx, code)
		require.NoError(t, err)
		_, err = f.ledger.RegisterCashMovement(f.ctx, f.register.ID, models.NewCashMovement{MovementTypeId: mt.ID, Amount: dec("10")})
		var validation *models.ValidationError
		assert.True(t, errors.As(err, &validation), code)
	}
	assert.True(t, f.registerStatement().ExpectedBalance.Equal(dec("1000")))
}
