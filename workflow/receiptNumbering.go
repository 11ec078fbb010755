package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

const (
	receiptLockTTL     = 5 * time.Second
	receiptSettingsTTL = 10 * time.Minute
)

// Locker is a best-effort cross-process lock.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// ObjectCache stores JSON-encodable values.
type ObjectCache interface {
	GetObject(ctx context.Context, key string, dest interface{}) (bool, error)
	SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error
}

// ReceiptNumber is a reserved number of a (branch, scope) sequence.
type ReceiptNumber struct {
	Number    int64
	Formatted string
	Setting   *models.ReceiptTypeSetting
}

// ReceiptNumberAllocator hands out receipt numbers with a bounded
// compare-and-insert loop over the unique (branch, scope, number) index.
type ReceiptNumberAllocator struct {
	MaxRetries int
	Locker     Locker
	Cache      ObjectCache
	Logger     *logrus.Logger
}

func NewReceiptNumberAllocator(maxRetries int, locker Locker, cache ObjectCache, logger *logrus.Logger) *ReceiptNumberAllocator {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &ReceiptNumberAllocator{
		MaxRetries: maxRetries,
		Locker:     locker,
		Cache:      cache,
		Logger:     logger,
	}
}

func receiptSettingCacheKey(branchId int, receiptType string) string {
	return fmt.Sprintf("receipt_setting:%d:%s", branchId, receiptType)
}

func receiptLockKey(branchId int, scope models.NumberingScope) string {
	return fmt.Sprintf("receipt:%d:%s", branchId, scope)
}

// ReceiptSetting returns the branch configuration of receiptType, or nil when the
// branch has none and the default format applies.
func (a *ReceiptNumberAllocator) ReceiptSetting(ctx context.Context, tx repository.Tx, branchId int, receiptType string) (*models.ReceiptTypeSetting, error) {
	key := receiptSettingCacheKey(branchId, receiptType)
	if a.Cache != nil {
		var cached models.ReceiptTypeSetting
		if ok, err := a.Cache.GetObject(ctx, key, &cached); err == nil && ok {
			return &cached, nil
		}
	}
	setting, err := tx.GetReceiptTypeSetting(ctx, branchId, receiptType)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.Cache != nil {
		_ = a.Cache.SetObject(ctx, key, setting, receiptSettingsTTL)
	}
	return setting, nil
}

// Allocate reserves the next number of (branchId, scope). insert must persist
// the row that owns the number and return repository.ErrDuplicateReceiptNumber
// when another writer took it first; the allocator then retries with a fresh
// maximum. Numbers are never skipped: the candidate is always max+1.
func (a *ReceiptNumberAllocator) Allocate(ctx context.Context, tx repository.Tx, branch *models.Branch, scope models.NumberingScope, receiptType string, insert func(ReceiptNumber) error) (ReceiptNumber, error) {
	if !scope.IsValid() {
		return ReceiptNumber{}, models.NewValidationError("numbering_scope", "unknown numbering scope %q", scope)
	}
	setting, err := a.ReceiptSetting(ctx, tx, branch.ID, receiptType)
	if err != nil {
		return ReceiptNumber{}, err
	}

	if a.Locker != nil {
		if release, err := a.Locker.Obtain(ctx, receiptLockKey(branch.ID, scope), receiptLockTTL); err == nil {
			defer release()
		}
	}

	for attempt := 1; attempt <= a.MaxRetries; attempt++ {
		max, err := tx.MaxReceiptNumber(ctx, branch.ID, scope)
		if isLockErr(err) {
			return ReceiptNumber{}, &models.NumberingConflict{BranchId: branch.ID, Scope: scope, Attempts: attempt}
		}
		if err != nil {
			return ReceiptNumber{}, err
		}
		candidate := ReceiptNumber{
			Number:    max + 1,
			Formatted: models.FormatReceiptNumber(setting, branch.PointOfSale, max+1),
			Setting:   setting,
		}
		err = insert(candidate)
		if err == nil {
			return candidate, nil
		}
		// The transaction may already be rolled back, so a lock error ends the loop.
		if isLockErr(err) {
			return ReceiptNumber{}, &models.NumberingConflict{BranchId: branch.ID, Scope: scope, Attempts: attempt}
		}
		if !errors.Is(err, repository.ErrDuplicateReceiptNumber) {
			return ReceiptNumber{}, err
		}
		if a.Logger != nil {
			a.Logger.WithFields(logrus.Fields{
				"field":     "ReceiptNumberAllocator",
				"branch_id": branch.ID,
				"scope":     scope,
				"candidate": candidate.Number,
				"attempt":   attempt,
			}).Warn("receipt number taken by a concurrent writer; retrying")
		}
	}
	return ReceiptNumber{}, &models.NumberingConflict{BranchId: branch.ID, Scope: scope, Attempts: a.MaxRetries}
}

func isLockErr(err error) bool {
	return errors.Is(err, repository.ErrLockTimeout) || errors.Is(err, repository.ErrDeadlock)
}
