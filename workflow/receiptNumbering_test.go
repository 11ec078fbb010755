package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

// staleMaxTx reports an outdated maximum for the first staleReads calls,
// the way a reader racing a concurrent insert would see it.
type staleMaxTx struct {
	repository.Tx
	stale      int64
	staleReads int
	always     bool
}

func (s *staleMaxTx) MaxReceiptNumber(ctx context.Context, branchId int, scope models.NumberingScope) (int64, error) {
	if s.always || s.staleReads > 0 {
		s.staleReads--
		return s.stale, nil
	}
	return s.Tx.MaxReceiptNumber(ctx, branchId, scope)
}

func (f *fixture) insertSaleNumbered(tx repository.Tx, number int64) error {
	return tx.CreateSale(f.ctx, &models.Sale{
		BranchId:       f.branch.ID,
		NumberingScope: models.NumberingScopeSale,
		ReceiptNumber:  number,
		ReceiptType:    "ticket",
		Status:         models.SaleStatusActive,
		SaleDate:       time.Now().UTC(),
	})
}

func TestConcurrentSalesTakeConsecutiveNumbers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		return f.insertSaleNumbered(tx, 105)
	}))

	var wg sync.WaitGroup
	numbers := make([]int64, 2)
	formatted := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sale, err := f.ledger.CreateSale(f.ctx, f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}))
			errs[i] = err
			if err == nil {
				numbers[i] = sale.ReceiptNumber
				formatted[i] = sale.ReceiptNumberFormatted
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	sort.Slice(numbers, func(a, b int) bool { return numbers[a] < numbers[b] })
	sort.Strings(formatted)
	assert.Equal(t, []int64{106, 107}, numbers)
	assert.Equal(t, []string{"0003-00000106", "0003-00000107"}, formatted)
}

func TestBudgetsNumberIndependently(t *testing.T) {
	f := newFixture(t)
	first := f.createSale(f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}))
	budget := f.createSale(f.sale("presupuesto", []models.NewSaleItem{f.item(f.coffee, "1")}))
	second := f.createSale(f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}))

	assert.Equal(t, int64(1), first.ReceiptNumber)
	assert.Equal(t, models.NumberingScopeBudget, budget.NumberingScope)
	assert.Equal(t, int64(1), budget.ReceiptNumber)
	assert.Equal(t, "P-000001", budget.ReceiptNumberFormatted)
	assert.Equal(t, int64(2), second.ReceiptNumber)
}

func TestAllocateGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	f.createSale(f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}))

	allocator := NewReceiptNumberAllocator(3, nil, nil, quietLogger())
	inserts := 0
	err := f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		stale := &staleMaxTx{Tx: tx, stale: 0, always: true}
		_, err := allocator.Allocate(f.ctx, stale, f.branch, models.NumberingScopeSale, "ticket", func(rn ReceiptNumber) error {
			inserts++
			return f.insertSaleNumbered(stale, rn.Number)
		})
		return err
	})

	var conflict *models.NumberingConflict
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, f.branch.ID, conflict.BranchId)
	assert.Equal(t, models.NumberingScopeSale, conflict.Scope)
	assert.Equal(t, 3, conflict.Attempts)
	assert.Equal(t, 3, inserts)
}

func TestAllocateRetriesWithFreshMaximum(t *testing.T) {
	f := newFixture(t)
	f.createSale(f.sale("ticket", []models.NewSaleItem{f.item(f.coffee, "1")}))

	allocator := NewReceiptNumberAllocator(3, nil, nil, quietLogger())
	var got ReceiptNumber
	inserts := 0
	require.NoError(t, f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		stale := &staleMaxTx{Tx: tx, stale: 0, staleReads: 1}
		var err error
		got, err = allocator.Allocate(f.ctx, stale, f.branch, models.NumberingScopeSale, "ticket", func(rn ReceiptNumber) error {
			inserts++
			return f.insertSaleNumbered(stale, rn.Number)
		})
		return err
	}))
	assert.Equal(t, int64(2), got.Number)
	assert.Equal(t, 2, inserts)
}

// lockedMaxTx fails the maximum read the way a locked index range would.
type lockedMaxTx struct {
	repository.Tx
	err error
}

func (l *lockedMaxTx) MaxReceiptNumber(ctx context.Context, branchId int, scope models.NumberingScope) (int64, error) {
	return 0, l.err
}

func TestAllocateReportsLockErrorsAsConflicts(t *testing.T) {
	f := newFixture(t)
	allocator := NewReceiptNumberAllocator(3, nil, nil, quietLogger())

	inserts := 0
	err := f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		_, err := allocator.Allocate(f.ctx, tx, f.branch, models.NumberingScopeSale, "ticket", func(ReceiptNumber) error {
			inserts++
			return fmt.Errorf("insert sale: %w", repository.ErrLockTimeout)
		})
		return err
	})
	var conflict *models.NumberingConflict
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, 1, conflict.Attempts)
	assert.Equal(t, 1, inserts, "a lock error is not retried inside the same transaction")

	err = f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		_, err := allocator.Allocate(f.ctx, &lockedMaxTx{Tx: tx, err: repository.ErrDeadlock}, f.branch, models.NumberingScopeSale, "ticket", func(ReceiptNumber) error {
			t.Fatal("insert must not run")
			return nil
		})
		return err
	})
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, f.branch.ID, conflict.BranchId)
}

func TestAllocateRejectsUnknownScope(t *testing.T) {
	f := newFixture(t)
	err := f.store.Transaction(f.ctx, func(tx repository.Tx) error {
		_, err := f.ledger.Numbering.Allocate(f.ctx, tx, f.branch, models.NumberingScope("factura"), "ticket", func(ReceiptNumber) error {
			t.Fatal("insert must not run")
			return nil
		})
		return err
	})
	var validation *models.ValidationError
	assert.True(t, errors.As(err, &validation))
}

type recordingLocker struct {
	mu       sync.Mutex
	obtained []string
	released int
}

func (l *recordingLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.obtained = append(l.obtained, key)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

type mapCache struct {
	mu    sync.Mutex
	items map[string][]byte
	hits  int
}

func (c *mapCache) GetObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func TestAllocateUsesLockerAndSettingCache(t *testing.T) {
	locker := &recordingLocker{}
	cache := &mapCache{items: map[string][]byte{}}
	f := newFixture(t, WithNumbering(NewReceiptNumberAllocator(5, locker, cache, quietLogger())))

	f.createSale(f.sale("factura_b", []models.NewSaleItem{f.item(f.coffee, "1")}))
	sale := f.createSale(f.sale("factura_b", []models.NewSaleItem{f.item(f.coffee, "1")}))

	assert.Equal(t, int64(2), sale.ReceiptNumber)
	assert.Contains(t, locker.obtained, receiptLockKey(f.branch.ID, models.NumberingScopeSale))
	assert.Equal(t, len(locker.obtained), locker.released)
	assert.Contains(t, cache.items, receiptSettingCacheKey(f.branch.ID, "factura_b"))
	assert.Positive(t, cache.hits)
}
