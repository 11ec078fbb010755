package workflow

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/repository/memory"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

const cashierId = 7

// fixture is a seeded branch with a ticket, a fiscal and a budget receipt
// type, three products, an open register and a customer with a 1000 credit line.
type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	ledger *Ledger

	branch   *models.Branch
	register *models.CashRegister

	coffee    *models.Product
	croissant *models.Product
	breakfast *models.Product

	customer *models.Customer
	account  *models.CurrentAccount

	methods map[string]int
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		t:       t,
		ctx:     utils.SetUserIdInContext(context.Background(), cashierId),
		store:   store,
		ledger:  NewLedger(store, quietLogger(), opts...),
		methods: map[string]int{},
	}
	ctx := f.ctx
	require.NoError(t, f.ledger.SeedDefaults(ctx))

	var err error
	f.branch, err = f.ledger.CreateBranch(ctx, models.NewBranch{Name: "Centro", PointOfSale: 3})
	require.NoError(t, err)

	_, err = f.ledger.CreateReceiptTypeSetting(ctx, models.NewReceiptTypeSetting{BranchId: f.branch.ID, ReceiptType: "ticket"})
	require.NoError(t, err)
	_, err = f.ledger.CreateReceiptTypeSetting(ctx, models.NewReceiptTypeSetting{BranchId: f.branch.ID, ReceiptType: "factura_b", IsFiscal: true, FiscalCode: 6})
	require.NoError(t, err)
	_, err = f.ledger.CreateReceiptTypeSetting(ctx, models.NewReceiptTypeSetting{
		BranchId:       f.branch.ID,
		ReceiptType:    "presupuesto",
		NumberingScope: models.NumberingScopeBudget,
		Prefix:         "P",
		PadWidth:       6,
	})
	require.NoError(t, err)

	f.coffee, err = f.ledger.CreateProduct(ctx, models.NewProduct{Name: "Café", Sku: "CAF", Price: dec("121")})
	require.NoError(t, err)
	f.croissant, err = f.ledger.CreateProduct(ctx, models.NewProduct{Name: "Medialuna", Sku: "MED", Price: dec("60.5")})
	require.NoError(t, err)
	f.breakfast, err = f.ledger.CreateProduct(ctx, models.NewProduct{
		Name:    "Desayuno",
		Sku:     "DES",
		Price:   dec("200"),
		IsCombo: true,
		Components: []models.NewComboComponent{
			{ComponentId: f.coffee.ID, Quantity: dec("1")},
			{ComponentId: f.croissant.ID, Quantity: dec("2")},
		},
	})
	require.NoError(t, err)

	for product, qty := range map[int]string{f.coffee.ID: "10", f.croissant.ID: "20"} {
		_, err = f.ledger.AdjustStock(ctx, models.NewStockAdjustment{ProductId: product, BranchId: f.branch.ID, Quantity: dec(qty), Reason: "inicial"})
		require.NoError(t, err)
	}

	f.register, err = f.ledger.OpenCashRegister(ctx, models.OpenCashRegisterInput{BranchId: f.branch.ID, OpeningBalance: dec("1000")})
	require.NoError(t, err)

	f.customer, err = f.ledger.CreateCustomer(ctx, models.NewContact{Name: "Ana Gómez"})
	require.NoError(t, err)
	limit := dec("1000")
	f.account, err = f.ledger.OpenCurrentAccount(ctx, models.OpenCurrentAccountInput{
		OwnerType:   models.OwnerTypeCustomer,
		OwnerId:     f.customer.ID,
		CreditLimit: &limit,
	})
	require.NoError(t, err)

	for _, code := range []string{
		models.PaymentMethodCash,
		models.PaymentMethodDebitCard,
		models.PaymentMethodTransfer,
		models.PaymentMethodCurrentAccount,
	} {
		method, err := f.ledger.PaymentMethodByCode(ctx, code)
		require.NoError(t, err)
		f.methods[code] = method.ID
	}
	return f
}

func (f *fixture) pay(code string, amount string) models.NewPayment {
	return models.NewPayment{PaymentMethodId: f.methods[code], Amount: dec(amount)}
}

func (f *fixture) item(product *models.Product, qty string) models.NewSaleItem {
	return models.NewSaleItem{ProductId: product.ID, Quantity: dec(qty)}
}

func (f *fixture) sale(receiptType string, items []models.NewSaleItem, payments ...models.NewPayment) models.NewSale {
	return models.NewSale{
		BranchId:    f.branch.ID,
		ReceiptType: receiptType,
		Items:       items,
		Payments:    payments,
	}
}

func (f *fixture) createSale(input models.NewSale) *models.Sale {
	f.t.Helper()
	sale, err := f.ledger.CreateSale(f.ctx, input)
	require.NoError(f.t, err)
	return sale
}

func (f *fixture) stockOf(product *models.Product) decimal.Decimal {
	f.t.Helper()
	var current decimal.Decimal
	require.NoError(f.t, f.store.View(f.ctx, func(tx repository.Tx) error {
		stock, err := tx.LockStock(f.ctx, product.ID, f.branch.ID)
		if err != nil {
			return err
		}
		current = stock.CurrentStock
		return nil
	}))
	return current
}

func (f *fixture) registerStatement() *CashRegisterStatement {
	f.t.Helper()
	statement, err := f.ledger.GetCashRegister(f.ctx, f.register.ID)
	require.NoError(f.t, err)
	return statement
}

func (f *fixture) accountStatement() *CurrentAccountStatement {
	f.t.Helper()
	statement, err := f.ledger.GetCurrentAccount(f.ctx, f.account.ID)
	require.NoError(f.t, err)
	return statement
}

func (f *fixture) outbox() []models.FiscalOutboxRecord {
	f.t.Helper()
	var records []models.FiscalOutboxRecord
	require.NoError(f.t, f.store.View(f.ctx, func(tx repository.Tx) error {
		var err error
		records, err = tx.ListDispatchableOutbox(f.ctx, time.Now().Add(24*time.Hour), time.Now().Add(24*time.Hour), 0)
		return err
	}))
	return records
}
