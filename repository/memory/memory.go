// Package memory is an in-process implementation of repository.Store used by
// tests and by local runs with STORE_DRIVER=memory.
//
// Transactions are serialized. Each one works on a copy of the committed state
// which replaces it only when the callback returns nil.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

const defaultLockTimeout = 5 * time.Second

type Store struct {
	sem         chan struct{}
	state       *state
	lockTimeout time.Duration
	now         func() time.Time

	fiscalMu    sync.Mutex
	fiscalLocks map[int]chan struct{}
}

type Option func(*Store)

// WithLockTimeout bounds how long a unit of work waits for the store.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the clock used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		sem:         make(chan struct{}, 1),
		state:       newState(),
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
		fiscalLocks: map[int]chan struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-timer.C:
		return nil, repository.ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithFiscalLock serializes fn per branch without holding the store.
func (s *Store) WithFiscalLock(ctx context.Context, branchId int, fn func() error) error {
	s.fiscalMu.Lock()
	lock, ok := s.fiscalLocks[branchId]
	if !ok {
		lock = make(chan struct{}, 1)
		s.fiscalLocks[branchId] = lock
	}
	s.fiscalMu.Unlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("fiscal lock for branch_id=%d: %w", branchId, repository.ErrLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()
	return fn()
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	working := s.state.clone()
	if err := fn(&memTx{st: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(&memTx{st: s.state.clone(), now: s.now})
}

type state struct {
	seq map[string]int

	branches        map[int]models.Branch
	receiptSettings map[int]models.ReceiptTypeSetting
	products        map[int]models.Product
	customers       map[int]models.Customer
	suppliers       map[int]models.Supplier
	paymentMethods  map[int]models.PaymentMethod
	movementTypes   map[int]models.MovementType

	sales        map[int]models.Sale
	saleItems    map[int][]models.SaleItem
	salePayments map[int][]models.SalePayment

	stocks         map[int]models.Stock
	stockMovements map[int]models.StockMovement

	registers     map[int]models.CashRegister
	cashMovements map[int]models.CashMovement

	accounts         map[int]models.CurrentAccount
	accountMovements map[int]models.CurrentAccountMovement

	outbox      map[int]models.FiscalOutboxRecord
	idempotency map[int]models.IdempotencyKey
	reports     map[int]models.ReconciliationReport
}

func newState() *state {
	return &state{
		seq:              map[string]int{},
		branches:         map[int]models.Branch{},
		receiptSettings:  map[int]models.ReceiptTypeSetting{},
		products:         map[int]models.Product{},
		customers:        map[int]models.Customer{},
		suppliers:        map[int]models.Supplier{},
		paymentMethods:   map[int]models.PaymentMethod{},
		movementTypes:    map[int]models.MovementType{},
		sales:            map[int]models.Sale{},
		saleItems:        map[int][]models.SaleItem{},
		salePayments:     map[int][]models.SalePayment{},
		stocks:           map[int]models.Stock{},
		stockMovements:   map[int]models.StockMovement{},
		registers:        map[int]models.CashRegister{},
		cashMovements:    map[int]models.CashMovement{},
		accounts:         map[int]models.CurrentAccount{},
		accountMovements: map[int]models.CurrentAccountMovement{},
		outbox:           map[int]models.FiscalOutboxRecord{},
		idempotency:      map[int]models.IdempotencyKey{},
		reports:          map[int]models.ReconciliationReport{},
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copySliceMap[V any](src map[int][]V) map[int][]V {
	dst := make(map[int][]V, len(src))
	for k, v := range src {
		dst[k] = append([]V(nil), v...)
	}
	return dst
}

func (st *state) clone() *state {
	return &state{
		seq:              copyMap(st.seq),
		branches:         copyMap(st.branches),
		receiptSettings:  copyMap(st.receiptSettings),
		products:         copyMap(st.products),
		customers:        copyMap(st.customers),
		suppliers:        copyMap(st.suppliers),
		paymentMethods:   copyMap(st.paymentMethods),
		movementTypes:    copyMap(st.movementTypes),
		sales:            copyMap(st.sales),
		saleItems:        copySliceMap(st.saleItems),
		salePayments:     copySliceMap(st.salePayments),
		stocks:           copyMap(st.stocks),
		stockMovements:   copyMap(st.stockMovements),
		registers:        copyMap(st.registers),
		cashMovements:    copyMap(st.cashMovements),
		accounts:         copyMap(st.accounts),
		accountMovements: copyMap(st.accountMovements),
		outbox:           copyMap(st.outbox),
		idempotency:      copyMap(st.idempotency),
		reports:          copyMap(st.reports),
	}
}

func (st *state) next(table string) int {
	st.seq[table]++
	return st.seq[table]
}

// sortedValues returns the rows matching keep ordered by id.
func sortedValues[V any](m map[int]V, keep func(V) bool) []V {
	ids := make([]int, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func get[V any](m map[int]V, id int) (*V, error) {
	v, ok := m[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &v, nil
}

func mustExist[V any](m map[int]V, id int) error {
	if _, ok := m[id]; !ok || id == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

type memTx struct {
	st  *state
	now func() time.Time
}

var _ repository.Tx = (*memTx)(nil)

func (t *memTx) stamp(ts *time.Time) {
	if ts.IsZero() {
		*ts = t.now().UTC()
	}
}

func defaultTrue(b **bool) {
	if *b == nil {
		*b = utils.NewTrue()
	}
}

// Catalog

func (t *memTx) CreateBranch(ctx context.Context, branch *models.Branch) error {
	for _, b := range t.st.branches {
		if b.Name == branch.Name {
			return repository.ErrDuplicateKey
		}
	}
	defaultTrue(&branch.IsActive)
	if branch.PointOfSale == 0 {
		branch.PointOfSale = 1
	}
	branch.ID = t.st.next("branches")
	t.stamp(&branch.CreatedAt)
	branch.UpdatedAt = branch.CreatedAt
	t.st.branches[branch.ID] = *branch
	return nil
}

func (t *memTx) GetBranch(ctx context.Context, id int) (*models.Branch, error) {
	return get(t.st.branches, id)
}

func (t *memTx) ListBranches(ctx context.Context, ids []int) ([]models.Branch, error) {
	wanted := map[int]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	return sortedValues(t.st.branches, func(b models.Branch) bool {
		return len(ids) == 0 || wanted[b.ID]
	}), nil
}

func (t *memTx) LockBranch(ctx context.Context, id int) (*models.Branch, error) {
	return get(t.st.branches, id)
}

func (t *memTx) CreateReceiptTypeSetting(ctx context.Context, setting *models.ReceiptTypeSetting) error {
	for _, s := range t.st.receiptSettings {
		if s.BranchId == setting.BranchId && s.ReceiptType == setting.ReceiptType {
			return repository.ErrDuplicateKey
		}
	}
	if setting.NumberingScope == "" {
		setting.NumberingScope = models.NumberingScopeSale
	}
	if setting.PadWidth == 0 {
		setting.PadWidth = 8
	}
	setting.ID = t.st.next("receipt_type_settings")
	t.stamp(&setting.CreatedAt)
	setting.UpdatedAt = setting.CreatedAt
	t.st.receiptSettings[setting.ID] = *setting
	return nil
}

func (t *memTx) GetReceiptTypeSetting(ctx context.Context, branchId int, receiptType string) (*models.ReceiptTypeSetting, error) {
	for _, s := range t.st.receiptSettings {
		if s.BranchId == branchId && s.ReceiptType == receiptType {
			found := s
			return &found, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (t *memTx) CreateProduct(ctx context.Context, product *models.Product) error {
	for _, p := range t.st.products {
		if p.Sku == product.Sku {
			return repository.ErrDuplicateKey
		}
	}
	defaultTrue(&product.IsActive)
	product.ID = t.st.next("products")
	for i := range product.Components {
		product.Components[i].ID = t.st.next("combo_components")
		product.Components[i].ComboId = product.ID
	}
	t.stamp(&product.CreatedAt)
	product.UpdatedAt = product.CreatedAt
	stored := *product
	stored.Components = append([]models.ComboComponent(nil), product.Components...)
	t.st.products[product.ID] = stored
	return nil
}

func (t *memTx) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	p, err := get(t.st.products, id)
	if err != nil {
		return nil, err
	}
	p.Components = append([]models.ComboComponent(nil), p.Components...)
	return p, nil
}

func (t *memTx) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	defaultTrue(&customer.IsActive)
	customer.ID = t.st.next("customers")
	t.stamp(&customer.CreatedAt)
	customer.UpdatedAt = customer.CreatedAt
	t.st.customers[customer.ID] = *customer
	return nil
}

func (t *memTx) GetCustomer(ctx context.Context, id int) (*models.Customer, error) {
	return get(t.st.customers, id)
}

func (t *memTx) CreateSupplier(ctx context.Context, supplier *models.Supplier) error {
	defaultTrue(&supplier.IsActive)
	supplier.ID = t.st.next("suppliers")
	t.stamp(&supplier.CreatedAt)
	supplier.UpdatedAt = supplier.CreatedAt
	t.st.suppliers[supplier.ID] = *supplier
	return nil
}

func (t *memTx) GetSupplier(ctx context.Context, id int) (*models.Supplier, error) {
	return get(t.st.suppliers, id)
}

func (t *memTx) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error {
	for _, m := range t.st.paymentMethods {
		if m.Code == method.Code {
			return repository.ErrDuplicateKey
		}
	}
	defaultTrue(&method.IsActive)
	method.ID = t.st.next("payment_methods")
	t.stamp(&method.CreatedAt)
	t.st.paymentMethods[method.ID] = *method
	return nil
}

func (t *memTx) GetPaymentMethod(ctx context.Context, id int) (*models.PaymentMethod, error) {
	return get(t.st.paymentMethods, id)
}

func (t *memTx) GetPaymentMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error) {
	for _, m := range t.st.paymentMethods {
		if m.Code == code {
			found := m
			return &found, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (t *memTx) CreateMovementType(ctx context.Context, movementType *models.MovementType) error {
	for _, m := range t.st.movementTypes {
		if m.Code == movementType.Code {
			return repository.ErrDuplicateKey
		}
	}
	movementType.ID = t.st.next("movement_types")
	t.stamp(&movementType.CreatedAt)
	t.st.movementTypes[movementType.ID] = *movementType
	return nil
}

func (t *memTx) GetMovementType(ctx context.Context, id int) (*models.MovementType, error) {
	return get(t.st.movementTypes, id)
}

func (t *memTx) GetMovementTypeByCode(ctx context.Context, code string) (*models.MovementType, error) {
	for _, m := range t.st.movementTypes {
		if m.Code == code {
			found := m
			return &found, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

// Sales

func (t *memTx) MaxReceiptNumber(ctx context.Context, branchId int, scope models.NumberingScope) (int64, error) {
	var max int64
	for _, s := range t.st.sales {
		if s.BranchId == branchId && s.NumberingScope == scope && s.ReceiptNumber > max {
			max = s.ReceiptNumber
		}
	}
	return max, nil
}

func (t *memTx) CreateSale(ctx context.Context, sale *models.Sale) error {
	for _, s := range t.st.sales {
		if s.BranchId == sale.BranchId && s.NumberingScope == sale.NumberingScope && s.ReceiptNumber == sale.ReceiptNumber {
			return repository.ErrDuplicateReceiptNumber
		}
	}
	if sale.PaymentStatus == "" {
		sale.PaymentStatus = models.PaymentStatusPending
	}
	sale.ID = t.st.next("sales")
	t.stamp(&sale.CreatedAt)
	sale.UpdatedAt = sale.CreatedAt
	for i := range sale.Items {
		sale.Items[i].ID = t.st.next("sale_items")
		sale.Items[i].SaleId = sale.ID
		sale.Items[i].CreatedAt = sale.CreatedAt
	}
	header := *sale
	header.Items = nil
	header.Payments = nil
	t.st.sales[sale.ID] = header
	t.st.saleItems[sale.ID] = append([]models.SaleItem(nil), sale.Items...)
	return nil
}

func (t *memTx) GetSale(ctx context.Context, id int) (*models.Sale, error) {
	sale, err := get(t.st.sales, id)
	if err != nil {
		return nil, err
	}
	sale.Items = append([]models.SaleItem{}, t.st.saleItems[id]...)
	sale.Payments = append([]models.SalePayment{}, t.st.salePayments[id]...)
	return sale, nil
}

func (t *memTx) LockSale(ctx context.Context, id int) (*models.Sale, error) {
	return t.GetSale(ctx, id)
}

func (t *memTx) UpdateSale(ctx context.Context, sale *models.Sale) error {
	if err := mustExist(t.st.sales, sale.ID); err != nil {
		return err
	}
	header := *sale
	header.Items = nil
	header.Payments = nil
	header.UpdatedAt = t.now().UTC()
	t.st.sales[sale.ID] = header
	return nil
}

func (t *memTx) CreateSalePayment(ctx context.Context, payment *models.SalePayment) error {
	if err := mustExist(t.st.sales, payment.SaleId); err != nil {
		return err
	}
	payment.ID = t.st.next("sale_payments")
	t.stamp(&payment.CreatedAt)
	t.st.salePayments[payment.SaleId] = append(t.st.salePayments[payment.SaleId], *payment)
	return nil
}

func (t *memTx) ListUnauthorizedFiscalSales(ctx context.Context, limit int) ([]models.Sale, error) {
	fiscal := map[string]bool{}
	for _, s := range t.st.receiptSettings {
		if s.IsFiscal {
			fiscal[fmt.Sprintf("%d/%s", s.BranchId, s.ReceiptType)] = true
		}
	}
	sales := sortedValues(t.st.sales, func(s models.Sale) bool {
		return s.Status == models.SaleStatusActive &&
			s.NumberingScope == models.NumberingScopeSale &&
			s.Cae == nil &&
			fiscal[fmt.Sprintf("%d/%s", s.BranchId, s.ReceiptType)]
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

// Stock

func (t *memTx) LockStock(ctx context.Context, productId int, branchId int) (*models.Stock, error) {
	for _, s := range t.st.stocks {
		if s.ProductId == productId && s.BranchId == branchId {
			found := s
			return &found, nil
		}
	}
	stock := models.Stock{ID: t.st.next("stocks"), ProductId: productId, BranchId: branchId, UpdatedAt: t.now().UTC()}
	t.st.stocks[stock.ID] = stock
	return &stock, nil
}

func (t *memTx) SaveStock(ctx context.Context, stock *models.Stock) error {
	if stock.ID == 0 {
		stock.ID = t.st.next("stocks")
	}
	stock.UpdatedAt = t.now().UTC()
	t.st.stocks[stock.ID] = *stock
	return nil
}

func (t *memTx) ListStocks(ctx context.Context) ([]models.Stock, error) {
	return sortedValues(t.st.stocks, nil), nil
}

func (t *memTx) CreateStockMovement(ctx context.Context, movement *models.StockMovement) error {
	movement.ID = t.st.next("stock_movements")
	t.stamp(&movement.CreatedAt)
	t.st.stockMovements[movement.ID] = *movement
	return nil
}

func (t *memTx) ListStockMovements(ctx context.Context, productId int, branchId int) ([]models.StockMovement, error) {
	return sortedValues(t.st.stockMovements, func(m models.StockMovement) bool {
		return m.ProductId == productId && m.BranchId == branchId
	}), nil
}

func (t *memTx) ListStockMovementsByReference(ctx context.Context, referenceType models.StockReferenceType, referenceId int) ([]models.StockMovement, error) {
	return sortedValues(t.st.stockMovements, func(m models.StockMovement) bool {
		return m.ReferenceType == referenceType && m.ReferenceId != nil && *m.ReferenceId == referenceId
	}), nil
}

// Cash

func (t *memTx) CreateCashRegister(ctx context.Context, register *models.CashRegister) error {
	register.ID = t.st.next("cash_registers")
	t.stamp(&register.CreatedAt)
	register.UpdatedAt = register.CreatedAt
	t.st.registers[register.ID] = *register
	return nil
}

func (t *memTx) GetCashRegister(ctx context.Context, id int) (*models.CashRegister, error) {
	return get(t.st.registers, id)
}

func (t *memTx) LockCashRegister(ctx context.Context, id int) (*models.CashRegister, error) {
	return get(t.st.registers, id)
}

func (t *memTx) FindOpenCashRegister(ctx context.Context, branchId int) (*models.CashRegister, error) {
	open := sortedValues(t.st.registers, func(r models.CashRegister) bool {
		return r.BranchId == branchId && r.Status == models.CashRegisterStatusOpen
	})
	if len(open) == 0 {
		return nil, models.ErrRecordNotFound
	}
	found := open[len(open)-1]
	return &found, nil
}

func (t *memTx) ListOpenCashRegisters(ctx context.Context, branchIds []int) ([]models.CashRegister, error) {
	wanted := map[int]bool{}
	for _, id := range branchIds {
		wanted[id] = true
	}
	return sortedValues(t.st.registers, func(r models.CashRegister) bool {
		return wanted[r.BranchId] && r.Status == models.CashRegisterStatusOpen
	}), nil
}

func (t *memTx) ListCashRegisters(ctx context.Context) ([]models.CashRegister, error) {
	return sortedValues(t.st.registers, nil), nil
}

func (t *memTx) SaveCashRegister(ctx context.Context, register *models.CashRegister) error {
	if err := mustExist(t.st.registers, register.ID); err != nil {
		return err
	}
	register.UpdatedAt = t.now().UTC()
	t.st.registers[register.ID] = *register
	return nil
}

func (t *memTx) CreateCashMovement(ctx context.Context, movement *models.CashMovement) error {
	if err := mustExist(t.st.registers, movement.CashRegisterId); err != nil {
		return err
	}
	movement.ID = t.st.next("cash_movements")
	t.stamp(&movement.CreatedAt)
	t.st.cashMovements[movement.ID] = *movement
	return nil
}

func (t *memTx) ListCashMovements(ctx context.Context, registerId int) ([]models.CashMovement, error) {
	return sortedValues(t.st.cashMovements, func(m models.CashMovement) bool {
		return m.CashRegisterId == registerId
	}), nil
}

func (t *memTx) ListCashMovementsByReference(ctx context.Context, referenceType models.CashReferenceType, referenceId int) ([]models.CashMovement, error) {
	return sortedValues(t.st.cashMovements, func(m models.CashMovement) bool {
		return m.ReferenceType == referenceType && m.ReferenceId != nil && *m.ReferenceId == referenceId
	}), nil
}

// Current accounts

func (t *memTx) CreateCurrentAccount(ctx context.Context, account *models.CurrentAccount) error {
	for _, a := range t.st.accounts {
		if a.OwnerType == account.OwnerType && a.OwnerId == account.OwnerId {
			return repository.ErrDuplicateKey
		}
	}
	if account.Status == "" {
		account.Status = models.AccountStatusActive
	}
	account.ID = t.st.next("current_accounts")
	t.stamp(&account.CreatedAt)
	account.UpdatedAt = account.CreatedAt
	t.st.accounts[account.ID] = *account
	return nil
}

func (t *memTx) GetCurrentAccount(ctx context.Context, id int) (*models.CurrentAccount, error) {
	return get(t.st.accounts, id)
}

func (t *memTx) LockCurrentAccount(ctx context.Context, id int) (*models.CurrentAccount, error) {
	return get(t.st.accounts, id)
}

func (t *memTx) LockCurrentAccountByOwner(ctx context.Context, owner models.AccountOwner) (*models.CurrentAccount, error) {
	for _, a := range t.st.accounts {
		if a.OwnerType == owner.Type() && a.OwnerId == owner.Id() {
			found := a
			return &found, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (t *memTx) ListCurrentAccounts(ctx context.Context) ([]models.CurrentAccount, error) {
	return sortedValues(t.st.accounts, nil), nil
}

func (t *memTx) SaveCurrentAccount(ctx context.Context, account *models.CurrentAccount) error {
	if err := mustExist(t.st.accounts, account.ID); err != nil {
		return err
	}
	account.UpdatedAt = t.now().UTC()
	t.st.accounts[account.ID] = *account
	return nil
}

func (t *memTx) CreateAccountMovement(ctx context.Context, movement *models.CurrentAccountMovement) error {
	if err := mustExist(t.st.accounts, movement.CurrentAccountId); err != nil {
		return err
	}
	movement.ID = t.st.next("current_account_movements")
	t.stamp(&movement.CreatedAt)
	t.st.accountMovements[movement.ID] = *movement
	return nil
}

func (t *memTx) ListAccountMovements(ctx context.Context, accountId int) ([]models.CurrentAccountMovement, error) {
	return sortedValues(t.st.accountMovements, func(m models.CurrentAccountMovement) bool {
		return m.CurrentAccountId == accountId
	}), nil
}

func (t *memTx) ListAccountMovementsBySale(ctx context.Context, saleId int) ([]models.CurrentAccountMovement, error) {
	return sortedValues(t.st.accountMovements, func(m models.CurrentAccountMovement) bool {
		return m.SaleId != nil && *m.SaleId == saleId
	}), nil
}

// Outbox, idempotency and reconciliation

func (t *memTx) CreateOutboxRecord(ctx context.Context, record *models.FiscalOutboxRecord) error {
	if record.PublishStatus == "" {
		record.PublishStatus = models.OutboxPublishStatusPending
	}
	record.ID = t.st.next("fiscal_outbox_records")
	t.stamp(&record.CreatedAt)
	record.UpdatedAt = record.CreatedAt
	t.st.outbox[record.ID] = *record
	return nil
}

func (t *memTx) ListDispatchableOutbox(ctx context.Context, now time.Time, staleBefore time.Time, limit int) ([]models.FiscalOutboxRecord, error) {
	records := sortedValues(t.st.outbox, func(r models.FiscalOutboxRecord) bool {
		switch r.PublishStatus {
		case models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed:
			return r.NextAttemptAt == nil || !r.NextAttemptAt.After(now)
		case models.OutboxPublishStatusProcessing:
			return r.LockedAt != nil && !r.LockedAt.After(staleBefore)
		}
		return false
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (t *memTx) SaveOutboxRecord(ctx context.Context, record *models.FiscalOutboxRecord) error {
	if err := mustExist(t.st.outbox, record.ID); err != nil {
		return err
	}
	record.UpdatedAt = t.now().UTC()
	t.st.outbox[record.ID] = *record
	return nil
}

func (t *memTx) GetOutboxRecord(ctx context.Context, id int) (*models.FiscalOutboxRecord, error) {
	return get(t.st.outbox, id)
}

func (t *memTx) HasOpenOutboxRecord(ctx context.Context, saleId int) (bool, error) {
	for _, r := range t.st.outbox {
		if r.SaleId != saleId {
			continue
		}
		switch r.PublishStatus {
		case models.OutboxPublishStatusPending, models.OutboxPublishStatusProcessing, models.OutboxPublishStatusFailed:
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateIdempotencyKey(ctx context.Context, key *models.IdempotencyKey) error {
	for _, k := range t.st.idempotency {
		if k.HandlerName == key.HandlerName && k.MessageId == key.MessageId {
			return repository.ErrDuplicateKey
		}
	}
	key.ID = t.st.next("idempotency_keys")
	t.stamp(&key.CreatedAt)
	key.UpdatedAt = key.CreatedAt
	t.st.idempotency[key.ID] = *key
	return nil
}

func (t *memTx) GetIdempotencyKey(ctx context.Context, handlerName string, messageId string) (*models.IdempotencyKey, error) {
	for _, k := range t.st.idempotency {
		if k.HandlerName == handlerName && k.MessageId == messageId {
			found := k
			return &found, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (t *memTx) UpdateIdempotencyKey(ctx context.Context, id int, status models.IdempotencyStatus, lastError *string) error {
	key, ok := t.st.idempotency[id]
	if !ok {
		return models.ErrRecordNotFound
	}
	key.Status = status
	key.LastError = lastError
	key.UpdatedAt = t.now().UTC()
	t.st.idempotency[id] = key
	return nil
}

func (t *memTx) CreateReconciliationReport(ctx context.Context, report *models.ReconciliationReport) error {
	if report.CheckType == "" {
		return errors.New("reconciliation report requires a check type")
	}
	report.ID = t.st.next("reconciliation_reports")
	t.stamp(&report.CreatedAt)
	t.st.reports[report.ID] = *report
	return nil
}

// Reports returns every reconciliation finding written so far.
func (s *Store) Reports() []models.ReconciliationReport {
	release, err := s.acquire(context.Background())
	if err != nil {
		return nil
	}
	defer release()
	return sortedValues(s.state.reports, nil)
}
