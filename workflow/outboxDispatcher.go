package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

// Publisher hands a claimed fiscal message to whoever authorizes it.
type Publisher interface {
	Publish(ctx context.Context, msg config.FiscalMessage) (string, error)
}

// PubSubPublisher publishes to the fiscal Pub/Sub topic; the push endpoint processes it.
type PubSubPublisher struct{}

func (PubSubPublisher) Publish(ctx context.Context, msg config.FiscalMessage) (string, error) {
	return config.PublishFiscalMessageWithResult(ctx, msg)
}

// DirectPublisher processes messages in-process, for environments without Pub/Sub.
type DirectPublisher struct {
	Ledger *Ledger
}

func (p DirectPublisher) Publish(ctx context.Context, msg config.FiscalMessage) (string, error) {
	if err := p.Ledger.ProcessFiscalMessage(ctx, msg); err != nil {
		return "", err
	}
	return fmt.Sprintf("direct-%d", msg.ID), nil
}

type OutboxDispatcher struct {
	Store        repository.Store
	Publisher    Publisher
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration

	now func() time.Time
}

func NewOutboxDispatcher(store repository.Store, publisher Publisher, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		Store:          store,
		Publisher:      publisher,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		now:            time.Now,
	}
}

func (d *OutboxDispatcher) clock() time.Time {
	return d.now().UTC()
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns how many records were published.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	if d.Store == nil || d.Publisher == nil {
		return 0
	}
	now := d.clock()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.FiscalOutboxRecord
	err := d.Store.Transaction(ctx, func(tx repository.Tx) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch), reclaim after LockTimeout
		records, err := tx.ListDispatchableOutbox(ctx, now, staleBefore, d.BatchSize)
		if err != nil {
			return err
		}
		for i := range records {
			rec := records[i]
			// Enforce max attempts: poison messages go terminal (DLQ equivalent).
			if d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				rec.PublishStatus = models.OutboxPublishStatusDead
				rec.LastPublishError = &msg
				rec.NextAttemptAt = nil
				rec.LockedAt = nil
				rec.LockedBy = nil
				if err := tx.SaveOutboxRecord(ctx, &rec); err != nil {
					return err
				}
				continue
			}

			lockedBy := d.DispatcherID
			lockedAt := now
			rec.PublishStatus = models.OutboxPublishStatusProcessing
			rec.LockedAt = &lockedAt
			rec.LockedBy = &lockedBy
			rec.PublishAttempts++
			rec.LastPublishError = nil
			rec.NextAttemptAt = nil
			if err := tx.SaveOutboxRecord(ctx, &rec); err != nil {
				return err
			}
			claimed = append(claimed, rec)
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "DispatchOnce", "claim outbox batch", nil, err)
		return 0
	}

	published := 0
	for _, rec := range claimed {
		pubID, pubErr := d.Publisher.Publish(ctx, rec.ToMessage())
		if pubErr != nil {
			d.markPublishFailed(ctx, rec.ID, pubErr, rec.PublishAttempts)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID)
		published++
	}
	return published
}

func (d *OutboxDispatcher) update(ctx context.Context, recordID int, fn func(rec *models.FiscalOutboxRecord)) error {
	return d.Store.Transaction(ctx, func(tx repository.Tx) error {
		rec, err := tx.GetOutboxRecord(ctx, recordID)
		if err != nil {
			return err
		}
		fn(rec)
		return tx.SaveOutboxRecord(ctx, rec)
	})
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, pubsubMsgID string) {
	now := d.clock()
	err := d.update(ctx, recordID, func(rec *models.FiscalOutboxRecord) {
		id := pubsubMsgID
		rec.PublishStatus = models.OutboxPublishStatusSent
		rec.PublishedAt = &now
		rec.PubSubMessageId = &id
		rec.LockedAt = nil
		rec.LockedBy = nil
		rec.NextAttemptAt = nil
	})
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markPublishSent", "mark outbox record sent", recordID, err)
	}
}

// outboxBackoff doubles from initial per attempt, capped at ten minutes.
func outboxBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			return time.Minute * 10
		}
	}
	return backoff
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, recordID int, cause error, attempt int) {
	now := d.clock()
	msg := cause.Error()

	// Terminal after MaxAttempts (DLQ equivalent).
	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = d.update(ctx, recordID, func(rec *models.FiscalOutboxRecord) {
			rec.PublishStatus = models.OutboxPublishStatusDead
			rec.LastPublishError = &msg
			rec.NextAttemptAt = nil
			rec.LockedAt = nil
			rec.LockedBy = nil
		})
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "OutboxDispatcher",
				"record_id": recordID,
				"attempt":   attempt,
			}).Error("outbox publish moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := now.Add(outboxBackoff(d.InitialBackoff, attempt))
	_ = d.update(ctx, recordID, func(rec *models.FiscalOutboxRecord) {
		rec.PublishStatus = models.OutboxPublishStatusFailed
		rec.LastPublishError = &msg
		rec.NextAttemptAt = &next
		rec.LockedAt = nil
		rec.LockedBy = nil
	})

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"record_id":       recordID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("outbox publish failed: " + msg)
	}
}
