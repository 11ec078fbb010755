package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/fiscal"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

var tracer = otel.Tracer("pos-ledger")

// PermissionApproveSales is required to approve pending sales.
const PermissionApproveSales = "sales.approve"

// Ledger runs every balance-changing operation of the point of sale.
// Each exported operation is one unit of work against Store.
type Ledger struct {
	Store     repository.Store
	Logger    *logrus.Logger
	Numbering *ReceiptNumberAllocator

	Fiscal     fiscal.Authority
	Breaker    *fiscal.CircuitBreaker
	FiscalCUIT string

	now func() time.Time
}

type Option func(*Ledger)

func WithFiscalAuthority(authority fiscal.Authority, breaker *fiscal.CircuitBreaker) Option {
	return func(l *Ledger) {
		l.Fiscal = authority
		if breaker != nil {
			l.Breaker = breaker
		}
	}
}

func WithFiscalCUIT(cuit string) Option {
	return func(l *Ledger) { l.FiscalCUIT = cuit }
}

func WithNumbering(allocator *ReceiptNumberAllocator) Option {
	return func(l *Ledger) {
		if allocator != nil {
			l.Numbering = allocator
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLedger(store repository.Store, logger *logrus.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		Store:     store,
		Logger:    logger,
		Numbering: NewReceiptNumberAllocator(config.NumberingMaxRetries(), nil, nil, logger),
		Fiscal:    fiscal.Disabled{},
		Breaker:   fiscal.NewCircuitBreaker(fiscal.DefaultBreakerConfig()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

// actor is the acting user id; background work runs as user 0.
func actor(ctx context.Context) int {
	id, _ := utils.GetUserIdFromContext(ctx)
	return id
}

// isBusinessError reports whether err is an expected outcome the caller can act on.
func isBusinessError(err error) bool {
	var validation *models.ValidationError
	var conflict *models.NumberingConflict
	var credit *models.InsufficientCredit
	var lock *models.StockLockTimeout
	var transition *models.InvalidStateTransition
	var denied *models.PermissionDenied
	var provider *models.FiscalProviderError
	var concurrent *models.ConcurrentUpdate
	return errors.As(err, &validation) ||
		errors.As(err, &concurrent) ||
		errors.As(err, &conflict) ||
		errors.As(err, &credit) ||
		errors.As(err, &lock) ||
		errors.As(err, &transition) ||
		errors.As(err, &denied) ||
		errors.As(err, &provider) ||
		errors.Is(err, models.ErrRecordNotFound)
}

// isLockContention reports a raw lock timeout or deadlock that no workflow
// step translated into a more specific error.
func isLockContention(err error) bool {
	if !errors.Is(err, repository.ErrLockTimeout) && !errors.Is(err, repository.ErrDeadlock) {
		return false
	}
	var lock *models.StockLockTimeout
	var conflict *models.NumberingConflict
	return !errors.As(err, &lock) && !errors.As(err, &conflict)
}

// transaction wraps one unit of work in a span and logs unexpected failures.
func (l *Ledger) transaction(ctx context.Context, operation string, fn func(ctx context.Context, tx repository.Tx) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	defer span.End()

	err := l.Store.Transaction(ctx, func(tx repository.Tx) error {
		return fn(ctx, tx)
	})
	if isLockContention(err) {
		l.warn(logrus.Fields{"field": operation, "error": err.Error()}, "transaction lost a lock race")
		err = &models.ConcurrentUpdate{Operation: operation, Err: err}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !isBusinessError(err) {
			config.LogError(l.Logger, "ledger.go", operation, "transaction rolled back", nil, err)
		}
	}
	return err
}

func (l *Ledger) view(ctx context.Context, operation string, fn func(ctx context.Context, tx repository.Tx) error) error {
	ctx, span := tracer.Start(ctx, operation)
	defer span.End()
	err := l.Store.View(ctx, func(tx repository.Tx) error {
		return fn(ctx, tx)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (l *Ledger) warn(fields logrus.Fields, msg string) {
	if l.Logger == nil {
		return
	}
	l.Logger.WithFields(fields).Warn(msg)
}

func validateInput(input any) error {
	if err := utils.ValidateStruct(input); err != nil {
		return &models.ValidationError{Reason: err.Error()}
	}
	return nil
}

func movementTypeByCode(ctx context.Context, tx repository.Tx, code string) (*models.MovementType, error) {
	mt, err := tx.GetMovementTypeByCode(ctx, code)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, fmt.Errorf("movement type %q is not seeded", code)
	}
	return mt, err
}

func intPtr(v int) *int {
	return &v
}
