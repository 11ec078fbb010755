package repository

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

var (
	// ErrDuplicateReceiptNumber is returned when (branch, scope, receipt_number) is already taken.
	ErrDuplicateReceiptNumber = errors.New("duplicate receipt number")
	// ErrDuplicateKey is returned for any other unique-index violation.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrLockTimeout is returned when a row lock could not be obtained in time.
	ErrLockTimeout = errors.New("lock wait timeout exceeded")
	// ErrDeadlock is returned when the database picked the unit of work as a
	// deadlock victim and rolled it back.
	ErrDeadlock = errors.New("deadlock found when trying to get lock")
)

// Store opens units of work. Everything written inside one Transaction call
// commits or rolls back together.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	// View runs read-only work outside of a write transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	// WithFiscalLock runs fn while holding the fiscal lock of the branch point
	// of sale. No transaction is open while fn runs.
	WithFiscalLock(ctx context.Context, branchId int, fn func() error) error
}

// Tx is the set of repositories bound to one unit of work.
type Tx interface {
	CatalogRepository
	SaleRepository
	StockRepository
	CashRepository
	AccountRepository
	OutboxRepository
	IdempotencyRepository
	ReconciliationRepository
}

type CatalogRepository interface {
	CreateBranch(ctx context.Context, branch *models.Branch) error
	GetBranch(ctx context.Context, id int) (*models.Branch, error)
	ListBranches(ctx context.Context, ids []int) ([]models.Branch, error)
	// LockBranch serializes branch-wide checks (one open register per branch) until commit.
	LockBranch(ctx context.Context, id int) (*models.Branch, error)

	CreateReceiptTypeSetting(ctx context.Context, setting *models.ReceiptTypeSetting) error
	GetReceiptTypeSetting(ctx context.Context, branchId int, receiptType string) (*models.ReceiptTypeSetting, error)

	CreateProduct(ctx context.Context, product *models.Product) error
	// GetProduct loads the product with its combo components.
	GetProduct(ctx context.Context, id int) (*models.Product, error)

	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id int) (*models.Customer, error)
	CreateSupplier(ctx context.Context, supplier *models.Supplier) error
	GetSupplier(ctx context.Context, id int) (*models.Supplier, error)

	CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error
	GetPaymentMethod(ctx context.Context, id int) (*models.PaymentMethod, error)
	GetPaymentMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error)

	CreateMovementType(ctx context.Context, movementType *models.MovementType) error
	GetMovementType(ctx context.Context, id int) (*models.MovementType, error)
	GetMovementTypeByCode(ctx context.Context, code string) (*models.MovementType, error)
}

type SaleRepository interface {
	// MaxReceiptNumber returns 0 when the (branch, scope) sequence is empty.
	MaxReceiptNumber(ctx context.Context, branchId int, scope models.NumberingScope) (int64, error)
	// CreateSale inserts the sale header and its items. A taken receipt number
	// yields ErrDuplicateReceiptNumber and leaves the unit of work usable.
	CreateSale(ctx context.Context, sale *models.Sale) error
	GetSale(ctx context.Context, id int) (*models.Sale, error)
	// LockSale loads the sale for update.
	LockSale(ctx context.Context, id int) (*models.Sale, error)
	// UpdateSale writes header columns only; items and payments are append-only.
	UpdateSale(ctx context.Context, sale *models.Sale) error
	CreateSalePayment(ctx context.Context, payment *models.SalePayment) error
	// ListUnauthorizedFiscalSales returns active sales of fiscal receipt types that have no CAE.
	ListUnauthorizedFiscalSales(ctx context.Context, limit int) ([]models.Sale, error)
}

type StockRepository interface {
	// LockStock locks the (product, branch) stock row, creating it at zero if missing.
	LockStock(ctx context.Context, productId int, branchId int) (*models.Stock, error)
	SaveStock(ctx context.Context, stock *models.Stock) error
	ListStocks(ctx context.Context) ([]models.Stock, error)
	CreateStockMovement(ctx context.Context, movement *models.StockMovement) error
	ListStockMovements(ctx context.Context, productId int, branchId int) ([]models.StockMovement, error)
	ListStockMovementsByReference(ctx context.Context, referenceType models.StockReferenceType, referenceId int) ([]models.StockMovement, error)
}

type CashRepository interface {
	CreateCashRegister(ctx context.Context, register *models.CashRegister) error
	GetCashRegister(ctx context.Context, id int) (*models.CashRegister, error)
	LockCashRegister(ctx context.Context, id int) (*models.CashRegister, error)
	FindOpenCashRegister(ctx context.Context, branchId int) (*models.CashRegister, error)
	ListOpenCashRegisters(ctx context.Context, branchIds []int) ([]models.CashRegister, error)
	ListCashRegisters(ctx context.Context) ([]models.CashRegister, error)
	SaveCashRegister(ctx context.Context, register *models.CashRegister) error
	CreateCashMovement(ctx context.Context, movement *models.CashMovement) error
	ListCashMovements(ctx context.Context, registerId int) ([]models.CashMovement, error)
	ListCashMovementsByReference(ctx context.Context, referenceType models.CashReferenceType, referenceId int) ([]models.CashMovement, error)
}

type AccountRepository interface {
	// CreateCurrentAccount yields ErrDuplicateKey when the owner already has an account.
	CreateCurrentAccount(ctx context.Context, account *models.CurrentAccount) error
	GetCurrentAccount(ctx context.Context, id int) (*models.CurrentAccount, error)
	LockCurrentAccount(ctx context.Context, id int) (*models.CurrentAccount, error)
	LockCurrentAccountByOwner(ctx context.Context, owner models.AccountOwner) (*models.CurrentAccount, error)
	ListCurrentAccounts(ctx context.Context) ([]models.CurrentAccount, error)
	SaveCurrentAccount(ctx context.Context, account *models.CurrentAccount) error
	CreateAccountMovement(ctx context.Context, movement *models.CurrentAccountMovement) error
	ListAccountMovements(ctx context.Context, accountId int) ([]models.CurrentAccountMovement, error)
	ListAccountMovementsBySale(ctx context.Context, saleId int) ([]models.CurrentAccountMovement, error)
}

type OutboxRepository interface {
	CreateOutboxRecord(ctx context.Context, record *models.FiscalOutboxRecord) error
	// ListDispatchableOutbox returns PENDING/FAILED rows that are due plus PROCESSING rows
	// whose lock went stale, skipping rows locked by other dispatchers.
	ListDispatchableOutbox(ctx context.Context, now time.Time, staleBefore time.Time, limit int) ([]models.FiscalOutboxRecord, error)
	SaveOutboxRecord(ctx context.Context, record *models.FiscalOutboxRecord) error
	GetOutboxRecord(ctx context.Context, id int) (*models.FiscalOutboxRecord, error)
	// HasOpenOutboxRecord reports whether the sale still has a record waiting to be published.
	HasOpenOutboxRecord(ctx context.Context, saleId int) (bool, error)
}

type IdempotencyRepository interface {
	// CreateIdempotencyKey yields ErrDuplicateKey when the key exists.
	CreateIdempotencyKey(ctx context.Context, key *models.IdempotencyKey) error
	GetIdempotencyKey(ctx context.Context, handlerName string, messageId string) (*models.IdempotencyKey, error)
	UpdateIdempotencyKey(ctx context.Context, id int, status models.IdempotencyStatus, lastError *string) error
}

type ReconciliationRepository interface {
	CreateReconciliationReport(ctx context.Context, report *models.ReconciliationReport) error
}
