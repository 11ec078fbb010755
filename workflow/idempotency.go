package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// idempotencyStaleAfter is how long a STARTED key blocks redeliveries.
const idempotencyStaleAfter = 5 * time.Minute

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
func BeginIdempotency(ctx context.Context, tx repository.Tx, handlerName, messageId string, now time.Time) (skip bool, err error) {
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.CreateIdempotencyKey(ctx, &key); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrDuplicateKey) {
		return false, err
	}

	existing, err := tx.GetIdempotencyKey(ctx, handlerName, messageId)
	if err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		// Another worker may still hold it; a stale row is taken over.
		if now.Sub(existing.UpdatedAt) < idempotencyStaleAfter {
			return false, ErrIdempotencyInProgress
		}
	}
	return false, tx.UpdateIdempotencyKey(ctx, existing.ID, models.IdempotencyStatusStarted, nil)
}

func MarkIdempotencySucceeded(ctx context.Context, tx repository.Tx, handlerName, messageId string) error {
	existing, err := tx.GetIdempotencyKey(ctx, handlerName, messageId)
	if err != nil {
		return err
	}
	return tx.UpdateIdempotencyKey(ctx, existing.ID, models.IdempotencyStatusSucceeded, nil)
}

func MarkIdempotencyFailed(ctx context.Context, tx repository.Tx, handlerName, messageId string, cause error) error {
	existing, err := tx.GetIdempotencyKey(ctx, handlerName, messageId)
	if err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return tx.UpdateIdempotencyKey(ctx, existing.ID, models.IdempotencyStatusFailed, &msg)
}
