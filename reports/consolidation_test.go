package reports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository/memory"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
)

type branchSetup struct {
	store  *memory.Store
	centro int
	norte  int
	sur    int
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// centro has an open register with movements, norte none, sur a closed one.
func newBranchSetup(t *testing.T) *branchSetup {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	ledger := workflow.NewLedger(store, quietLogger())
	require.NoError(t, ledger.SeedDefaults(ctx))

	branchId := func(name string) int {
		b, err := ledger.CreateBranch(ctx, models.NewBranch{Name: name})
		require.NoError(t, err)
		return b.ID
	}
	s := &branchSetup{store: store, centro: branchId("Centro"), norte: branchId("Norte"), sur: branchId("Sur")}

	income, err := ledger.MovementTypeByCode(ctx, models.MovementTypeManualIncome)
	require.NoError(t, err)
	expense, err := ledger.MovementTypeByCode(ctx, models.MovementTypeManualExpense)
	require.NoError(t, err)

	centro, err := ledger.OpenCashRegister(ctx, models.OpenCashRegisterInput{BranchId: s.centro, OpeningBalance: dec("1000")})
	require.NoError(t, err)
	_, err = ledger.RegisterCashMovement(ctx, centro.ID, models.NewCashMovement{MovementTypeId: income.ID, Amount: dec("250")})
	require.NoError(t, err)
	_, err = ledger.RegisterCashMovement(ctx, centro.ID, models.NewCashMovement{MovementTypeId: expense.ID, Amount: dec("100")})
	require.NoError(t, err)

	sur, err := ledger.OpenCashRegister(ctx, models.OpenCashRegisterInput{BranchId: s.sur, OpeningBalance: dec("300")})
	require.NoError(t, err)
	_, err = ledger.CloseCashRegister(ctx, sur.ID, models.CloseCashRegisterInput{DeclaredBalance: dec("300")})
	require.NoError(t, err)
	return s
}

type mapCache struct {
	values map[string]*Consolidation
	sets   int
}

func (c *mapCache) GetObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*dest.(*Consolidation) = *v
	return true, nil
}

func (c *mapCache) SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	c.values[key] = obj.(*Consolidation)
	c.sets++
	return nil
}

func TestConsolidate(t *testing.T) {
	s := newBranchSetup(t)
	agg := NewAggregator(s.store, nil, quietLogger())
	agg.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("ART", -3*3600)) }

	result, err := agg.Consolidate(context.Background(), []int{s.sur, s.centro, s.norte, s.centro})
	require.NoError(t, err)
	require.Len(t, result.Branches, 3)

	centro := result.Branches[0]
	assert.Equal(t, "Centro", centro.BranchName)
	require.NotNil(t, centro.OpenRegisterId)
	assert.Equal(t, 1, centro.OpenRegisters)
	assert.True(t, centro.TotalIncome.Equal(dec("250")))
	assert.True(t, centro.TotalExpenses.Equal(dec("100")))
	assert.True(t, centro.TotalBalance.Equal(dec("1150")))

	for _, idle := range result.Branches[1:] {
		assert.Nil(t, idle.OpenRegisterId, idle.BranchName)
		assert.Zero(t, idle.OpenRegisters)
		assert.True(t, idle.TotalBalance.IsZero())
	}

	assert.True(t, result.TotalIncome.Equal(dec("250")))
	assert.True(t, result.TotalExpenses.Equal(dec("100")))
	assert.True(t, result.TotalBalance.Equal(dec("1150")))
	assert.Equal(t, time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC), result.GeneratedAt)
}

func TestConsolidateValidation(t *testing.T) {
	s := newBranchSetup(t)
	agg := NewAggregator(s.store, nil, quietLogger())

	for name, ids := range map[string][]int{
		"empty":    nil,
		"negative": {s.centro, -1},
		"unknown":  {s.centro, 999},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := agg.Consolidate(context.Background(), ids)
			var validation *models.ValidationError
			require.True(t, errors.As(err, &validation), "got %v", err)
			assert.Equal(t, "ids", validation.Field)
		})
	}
}

func TestConsolidateUsesCache(t *testing.T) {
	s := newBranchSetup(t)
	cache := &mapCache{values: map[string]*Consolidation{}}
	agg := NewAggregator(s.store, cache, quietLogger())

	first, err := agg.Consolidate(context.Background(), []int{s.norte, s.centro})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	require.Contains(t, cache.values, summaryCacheKey([]int{s.centro, s.norte}))

	second, err := agg.Consolidate(context.Background(), []int{s.centro, s.norte})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.True(t, first.TotalBalance.Equal(second.TotalBalance))
}

func TestExportXLSX(t *testing.T) {
	s := newBranchSetup(t)
	agg := NewAggregator(s.store, nil, quietLogger())
	result, err := agg.Consolidate(context.Background(), []int{s.centro, s.norte})
	require.NoError(t, err)

	content, err := ExportXLSX(result)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, summaryHeadings, rows[0])
	assert.Equal(t, []string{"Centro", "1", "1000", "250", "100", "1150"}, rows[1])
	assert.Equal(t, "Norte", rows[2][0])
	assert.Equal(t, "-", rows[2][1])
	assert.Equal(t, []string{"Total", "", "", "250", "100", "1150"}, rows[3])
}
