package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func TestSaleStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to models.SaleStatus
		allowed  bool
	}{
		{models.SaleStatusPending, models.SaleStatusApproved, true},
		{models.SaleStatusPending, models.SaleStatusRejected, true},
		{models.SaleStatusPending, models.SaleStatusActive, false},
		{models.SaleStatusApproved, models.SaleStatusActive, true},
		{models.SaleStatusApproved, models.SaleStatusRejected, false},
		{models.SaleStatusActive, models.SaleStatusAnnulled, true},
		{models.SaleStatusAnnulled, models.SaleStatusActive, false},
		{models.SaleStatusRejected, models.SaleStatusApproved, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAccountStatusTransitions(t *testing.T) {
	assert.True(t, models.AccountStatusActive.CanTransitionTo(models.AccountStatusSuspended))
	assert.True(t, models.AccountStatusSuspended.CanTransitionTo(models.AccountStatusActive))
	assert.False(t, models.AccountStatusClosed.CanTransitionTo(models.AccountStatusActive))
}

func TestOperationTypeOpposite(t *testing.T) {
	assert.Equal(t, models.OperationTypeSalida, models.OperationTypeEntrada.Opposite())
	assert.Equal(t, models.OperationTypeEntrada, models.OperationTypeSalida.Opposite())
}

func TestSignConventions(t *testing.T) {
	assert.True(t, models.CashSignedAmount(models.OperationTypeEntrada, dec("10")).Equal(dec("10")))
	assert.True(t, models.CashSignedAmount(models.OperationTypeSalida, dec("10")).Equal(dec("-10")))
	assert.True(t, models.AccountSignedAmount(models.OperationTypeEntrada, dec("10")).Equal(dec("-10")))
	assert.True(t, models.AccountSignedAmount(models.OperationTypeSalida, dec("10")).Equal(dec("10")))
}

func TestEnumUnmarshalRejectsUnknownValues(t *testing.T) {
	var input struct {
		Scope  models.NumberingScope `json:"scope"`
		Status models.AccountStatus  `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"scope":"presupuesto","status":"suspended"}`), &input))
	assert.Equal(t, models.NumberingScopeBudget, input.Scope)
	assert.Equal(t, models.AccountStatusSuspended, input.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"scope":"factura"}`), &input))
	assert.Error(t, json.Unmarshal([]byte(`{"status":"frozen"}`), &input))

	var d models.DiscountType
	assert.Error(t, json.Unmarshal([]byte(`"X"`), &d))
}

func TestAccountOwnerValidate(t *testing.T) {
	assert.NoError(t, models.CustomerOwner(3).Validate())
	assert.Error(t, models.CustomerOwner(0).Validate())
	assert.Equal(t, models.OwnerTypeSupplier, models.SupplierOwner(2).Type())
}
