package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func (t *gormTx) CreateOutboxRecord(ctx context.Context, record *models.FiscalOutboxRecord) error {
	return create(t.conn(ctx), record)
}

func (t *gormTx) ListDispatchableOutbox(ctx context.Context, now time.Time, staleBefore time.Time, limit int) ([]models.FiscalOutboxRecord, error) {
	var claimed []models.FiscalOutboxRecord
	// Eligible:
	// - PENDING / FAILED and ready to retry
	// - PROCESSING but lock is stale (dispatcher crashed mid-batch)
	err := t.conn(ctx).
		Where(`
			(
				publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			)
			OR
			(
				publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
			)
		`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
		Order("id ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Find(&claimed).Error
	if err != nil {
		return nil, translate(err)
	}
	return claimed, nil
}

func (t *gormTx) SaveOutboxRecord(ctx context.Context, record *models.FiscalOutboxRecord) error {
	return translate(t.conn(ctx).Save(record).Error)
}

func (t *gormTx) GetOutboxRecord(ctx context.Context, id int) (*models.FiscalOutboxRecord, error) {
	return take[models.FiscalOutboxRecord](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) HasOpenOutboxRecord(ctx context.Context, saleId int) (bool, error) {
	var count int64
	err := t.conn(ctx).Model(&models.FiscalOutboxRecord{}).
		Where("sale_id = ? AND publish_status IN ?", saleId, []string{
			models.OutboxPublishStatusPending,
			models.OutboxPublishStatusProcessing,
			models.OutboxPublishStatusFailed,
		}).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

// WithFiscalLock holds a MySQL advisory lock for the duration of fn.
// NOTE: GET_LOCK is connection-scoped, so the lock lives on one pinned
// connection that runs no transaction.
func (s *GormStore) WithFiscalLock(ctx context.Context, branchId int, fn func() error) error {
	lockName := fmt.Sprintf("fiscal:%d", branchId)
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var ok sql.NullInt64
		if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
			return translate(err)
		}
		if !ok.Valid || ok.Int64 != 1 {
			return fmt.Errorf("could not acquire fiscal lock for branch_id=%d: %w", branchId, ErrLockTimeout)
		}
		defer func() {
			var released sql.NullInt64
			// released even when ctx is already cancelled
			_ = conn.WithContext(context.Background()).Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
		}()
		return fn()
	})
}

func (t *gormTx) CreateIdempotencyKey(ctx context.Context, key *models.IdempotencyKey) error {
	return create(t.conn(ctx), key)
}

func (t *gormTx) GetIdempotencyKey(ctx context.Context, handlerName string, messageId string) (*models.IdempotencyKey, error) {
	return take[models.IdempotencyKey](t.conn(ctx), "handler_name = ? AND message_id = ?", handlerName, messageId)
}

func (t *gormTx) UpdateIdempotencyKey(ctx context.Context, id int, status models.IdempotencyStatus, lastError *string) error {
	return translate(t.conn(ctx).Model(&models.IdempotencyKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "last_error": lastError}).Error)
}

func (t *gormTx) CreateReconciliationReport(ctx context.Context, report *models.ReconciliationReport) error {
	return create(t.conn(ctx), report)
}
