//go:build integration

package repository_test

// Runs the ledger against a real MySQL through testcontainers:
//   go test -tags integration ./repository/...

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcMysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
)

func setupMySQL(t *testing.T) *repository.GormStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcMysql.Run(ctx, "mysql:8.0.36",
		tcMysql.WithDatabase("pos_test"),
		tcMysql.WithUsername("pos"),
		tcMysql.WithPassword("pos"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "loc=UTC", "transaction_isolation=%27READ-COMMITTED%27")
	require.NoError(t, err)
	db, err := config.OpenDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, models.MigrateTable(db))
	return repository.NewGormStore(db)
}

func TestLedgerOnMySQL(t *testing.T) {
	store := setupMySQL(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ledger := workflow.NewLedger(store, logger)
	ctx := utils.SetUserIdInContext(context.Background(), 1)
	dec := decimal.RequireFromString

	require.NoError(t, ledger.SeedDefaults(ctx))
	require.NoError(t, ledger.SeedDefaults(ctx))

	branch, err := ledger.CreateBranch(ctx, models.NewBranch{Name: "Centro", PointOfSale: 5})
	require.NoError(t, err)
	_, err = ledger.CreateReceiptTypeSetting(ctx, models.NewReceiptTypeSetting{BranchId: branch.ID, ReceiptType: "ticket"})
	require.NoError(t, err)
	coffee, err := ledger.CreateProduct(ctx, models.NewProduct{Name: "Café", Sku: "CAF", Price: dec("121")})
	require.NoError(t, err)
	_, err = ledger.CreateProduct(ctx, models.NewProduct{Name: "Café doble", Sku: "CAF", Price: dec("200")})
	var validation *models.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = ledger.AdjustStock(ctx, models.NewStockAdjustment{ProductId: coffee.ID, BranchId: branch.ID, Quantity: dec("20"), Reason: "inicial"})
	require.NoError(t, err)
	register, err := ledger.OpenCashRegister(ctx, models.OpenCashRegisterInput{BranchId: branch.ID, OpeningBalance: dec("0")})
	require.NoError(t, err)
	cash, err := ledger.PaymentMethodByCode(ctx, models.PaymentMethodCash)
	require.NoError(t, err)

	const sales = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
	)
	for i := 0; i < sales; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := ledger.CreateSale(ctx, models.NewSale{
				BranchId:    branch.ID,
				ReceiptType: "ticket",
				Items:       []models.NewSaleItem{{ProductId: coffee.ID, Quantity: dec("1")}},
				Payments:    []models.NewPayment{{PaymentMethodId: cash.ID, Amount: dec("121")}},
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, sale.ReceiptNumberFormatted)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(numbers)
	assert.Equal(t, []string{"0005-00000001", "0005-00000002", "0005-00000003", "0005-00000004"}, numbers)

	statement, err := ledger.GetCashRegister(ctx, register.ID)
	require.NoError(t, err)
	assert.True(t, statement.ExpectedBalance.Equal(dec("484")), statement.ExpectedBalance.String())
	assert.Len(t, statement.Movements, sales)

	report, err := ledger.ReconcileLedgers(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.MismatchesWritten)
	assert.Equal(t, 1, report.StocksChecked)
}
