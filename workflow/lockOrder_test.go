package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/repository/memory"
)

// lockRecorder notes which rows a unit of work locks, in order.
type lockRecorder struct {
	repository.Tx
	locks *[]string
}

func (r lockRecorder) LockStock(ctx context.Context, productId int, branchId int) (*models.Stock, error) {
	*r.locks = append(*r.locks, "stock")
	return r.Tx.LockStock(ctx, productId, branchId)
}

func (r lockRecorder) LockCashRegister(ctx context.Context, id int) (*models.CashRegister, error) {
	*r.locks = append(*r.locks, "register")
	return r.Tx.LockCashRegister(ctx, id)
}

func (r lockRecorder) LockCurrentAccount(ctx context.Context, id int) (*models.CurrentAccount, error) {
	*r.locks = append(*r.locks, "account")
	return r.Tx.LockCurrentAccount(ctx, id)
}

func (r lockRecorder) LockCurrentAccountByOwner(ctx context.Context, owner models.AccountOwner) (*models.CurrentAccount, error) {
	*r.locks = append(*r.locks, "account")
	return r.Tx.LockCurrentAccountByOwner(ctx, owner)
}

type recordingStore struct {
	repository.Store
	locks []string
}

func (s *recordingStore) Transaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.locks = nil
	return s.Store.Transaction(ctx, func(tx repository.Tx) error {
		return fn(lockRecorder{Tx: tx, locks: &s.locks})
	})
}

// failingStore rolls every unit of work back with err.
type failingStore struct {
	repository.Store
	err error
}

func (s failingStore) Transaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	return fmt.Errorf("commit: %w", s.err)
}

func TestSalePaymentLocksRegisterBeforeAccount(t *testing.T) {
	f := newFixture(t)
	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")})
	input.CustomerId = &f.customer.ID
	sale := f.createSale(input)

	store := &recordingStore{Store: f.store}
	ledger := NewLedger(store, quietLogger())
	_, err := ledger.ApplySalePayment(f.ctx, sale.ID, models.SalePaymentInput{
		CashRegisterId: &f.register.ID,
		Payments: []models.NewPayment{
			f.pay(models.PaymentMethodCurrentAccount, "100"),
			f.pay(models.PaymentMethodCash, "21"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"register", "account"}, store.locks)
	assert.True(t, f.accountStatement().CurrentBalance.Equal(dec("-100")))
	assert.True(t, f.registerStatement().ExpectedBalance.Equal(dec("1021")))
}

func TestAccountPaymentLocksRegisterBeforeAccount(t *testing.T) {
	f := newFixture(t)
	store := &recordingStore{Store: f.store}
	ledger := NewLedger(store, quietLogger())

	_, err := ledger.RegisterAccountPayment(f.ctx, f.account.ID, models.AccountPaymentInput{
		Amount:          dec("30"),
		PaymentMethodId: f.methods[models.PaymentMethodCash],
		CashRegisterId:  &f.register.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"register", "account"}, store.locks)
}

func TestAnnulmentLocksInSaleOrder(t *testing.T) {
	f := newFixture(t)
	input := f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")},
		f.pay(models.PaymentMethodCurrentAccount, "100"),
		f.pay(models.PaymentMethodCash, "21"),
	)
	input.CustomerId = &f.customer.ID
	input.CashRegisterId = &f.register.ID
	sale := f.createSale(input)

	store := &recordingStore{Store: f.store}
	ledger := NewLedger(store, quietLogger())
	_, err := ledger.AnnulSale(f.ctx, sale.ID, models.AnnulSaleInput{Reason: "error de carga"})
	require.NoError(t, err)
	assert.Equal(t, []string{"stock", "register", "account"}, store.locks)
}

func TestDeadlockIsReportedAsConcurrentUpdate(t *testing.T) {
	f := newFixture(t)
	ledger := NewLedger(failingStore{Store: f.store, err: repository.ErrDeadlock}, quietLogger())

	_, err := ledger.RegisterAccountPayment(f.ctx, f.account.ID, models.AccountPaymentInput{
		Amount:          dec("30"),
		PaymentMethodId: f.methods[models.PaymentMethodTransfer],
	})
	var concurrent *models.ConcurrentUpdate
	require.True(t, errors.As(err, &concurrent), "got %v", err)
	assert.Equal(t, "RegisterAccountPayment", concurrent.Operation)
	assert.True(t, errors.Is(err, repository.ErrDeadlock))
}

func TestBusyStoreTimesOutWithTypedErrors(t *testing.T) {
	store := memory.New(memory.WithLockTimeout(20 * time.Millisecond))
	ledger := NewLedger(store, quietLogger())
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.Transaction(ctx, func(tx repository.Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	_, err := ledger.AdjustStock(ctx, models.NewStockAdjustment{ProductId: 1, BranchId: 1, Quantity: dec("1"), Reason: "conteo"})
	var stockLock *models.StockLockTimeout
	require.True(t, errors.As(err, &stockLock), "got %v", err)
	assert.Equal(t, 1, stockLock.ProductId)

	_, err = ledger.RegisterAccountPayment(ctx, 1, models.AccountPaymentInput{Amount: dec("10"), PaymentMethodId: 1})
	var concurrent *models.ConcurrentUpdate
	require.True(t, errors.As(err, &concurrent), "got %v", err)
	assert.True(t, errors.Is(err, repository.ErrLockTimeout))
}
