package workflow

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/fiscal"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

// FiscalHandlerName keys the idempotency rows of fiscal messages.
const FiscalHandlerName = "fiscal.authorize"

// enqueueFiscal writes the outbox row that asks for the sale's CAE after commit.
func (l *Ledger) enqueueFiscal(ctx context.Context, tx repository.Tx, sale *models.Sale) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if correlationId == "" {
		correlationId = uuid.NewString()
	}
	return tx.CreateOutboxRecord(ctx, &models.FiscalOutboxRecord{
		SaleId:        sale.ID,
		BranchId:      sale.BranchId,
		PublishStatus: models.OutboxPublishStatusPending,
		CorrelationId: correlationId,
	})
}

// AuthorizeFiscal obtains the CAE of an active fiscal sale. Calls are
// serialized per branch point of sale and run outside any transaction: the
// sale is read, the authority is asked, and the CAE is written in a second
// short unit of work that never replaces a CAE already stored. When the
// authority fails or rejects the voucher the sale keeps a null CAE and only
// the attempt is recorded.
func (l *Ledger) AuthorizeFiscal(ctx context.Context, saleId int) (*models.Sale, error) {
	var branchId int
	err := l.view(ctx, "AuthorizeFiscal", func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetSale(ctx, saleId)
		if err != nil {
			return err
		}
		branchId = current.BranchId
		return nil
	})
	if err != nil {
		return nil, err
	}

	var sale *models.Sale
	err = l.Store.WithFiscalLock(ctx, branchId, func() error {
		var voucher *fiscal.Voucher
		var err error
		sale, voucher, err = l.fiscalVoucher(ctx, saleId)
		if err != nil || voucher == nil {
			return err
		}

		authorization, failure := l.requestAuthorization(ctx, *voucher)
		if failure != nil {
			l.warn(logrus.Fields{
				"field":   "AuthorizeFiscal",
				"sale_id": saleId,
			}, failure.Error())
			if recErr := l.recordFiscalFailure(ctx, saleId, failure); recErr != nil {
				config.LogError(l.Logger, "fiscalAuthorization.go", "AuthorizeFiscal", "record fiscal failure", saleId, recErr)
			}
			return failure
		}

		sale, err = l.storeAuthorization(ctx, saleId, authorization)
		return err
	})
	if errors.Is(err, repository.ErrLockTimeout) {
		err = &models.ConcurrentUpdate{Operation: "AuthorizeFiscal", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// fiscalVoucher loads the sale and builds its voucher. The voucher is nil when
// the sale already has a CAE.
func (l *Ledger) fiscalVoucher(ctx context.Context, saleId int) (*models.Sale, *fiscal.Voucher, error) {
	var sale *models.Sale
	var voucher *fiscal.Voucher
	err := l.view(ctx, "AuthorizeFiscal.load", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.GetSale(ctx, saleId)
		if err != nil {
			return err
		}
		if sale.Cae != nil {
			return nil
		}
		if sale.IsBudget() || sale.Status != models.SaleStatusActive {
			return models.NewValidationError("sale_id", "sale %d is %s and cannot be authorized", sale.ID, sale.Status)
		}
		setting, err := l.Numbering.ReceiptSetting(ctx, tx, sale.BranchId, sale.ReceiptType)
		if err != nil {
			return err
		}
		if setting == nil || !setting.IsFiscal {
			return models.NewValidationError("receipt_type", "%s is not a fiscal receipt type", sale.ReceiptType)
		}
		branch, err := tx.GetBranch(ctx, sale.BranchId)
		if err != nil {
			return err
		}
		voucher = &fiscal.Voucher{
			VoucherType: setting.FiscalCode,
			PointOfSale: branch.PointOfSale,
			CUIT:        l.FiscalCUIT,
			Net:         sale.Total.Sub(sale.TaxAmount),
			Tax:         sale.TaxAmount,
			Total:       sale.Total,
			SaleId:      sale.ID,
			IssuedAt:    sale.SaleDate,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sale, voucher, nil
}

// requestAuthorization calls the authority through the breaker. Rejections
// are answers, not outages, and leave the breaker alone.
func (l *Ledger) requestAuthorization(ctx context.Context, voucher fiscal.Voucher) (*fiscal.Authorization, *models.FiscalProviderError) {
	var authorization *fiscal.Authorization
	var rejected *fiscal.RejectedError
	err := l.Breaker.Execute(func() error {
		a, err := l.Fiscal.Authorize(ctx, voucher)
		if errors.As(err, &rejected) {
			return nil
		}
		if err != nil {
			return err
		}
		authorization = a
		return nil
	})
	switch {
	case rejected != nil:
		return nil, &models.FiscalProviderError{SaleId: voucher.SaleId, Reason: "voucher rejected", Err: rejected}
	case err != nil:
		return nil, &models.FiscalProviderError{SaleId: voucher.SaleId, Reason: "authority unavailable", Err: err}
	}
	return authorization, nil
}

// storeAuthorization writes the CAE unless the sale already carries one.
func (l *Ledger) storeAuthorization(ctx context.Context, saleId int, authorization *fiscal.Authorization) (*models.Sale, error) {
	var sale *models.Sale
	err := l.transaction(ctx, "AuthorizeFiscal.store", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, saleId)
		if err != nil {
			return err
		}
		if sale.Cae != nil {
			if *sale.Cae != authorization.CAE {
				l.warn(logrus.Fields{
					"field":   "AuthorizeFiscal",
					"sale_id": saleId,
					"stored":  *sale.Cae,
					"ignored": authorization.CAE,
				}, "sale already authorized; keeping the stored CAE")
			}
			return nil
		}
		expiresAt := authorization.ExpiresAt
		sale.Cae = &authorization.CAE
		sale.CaeExpiresAt = &expiresAt
		sale.FiscalAttempts++
		sale.LastFiscalError = nil
		return tx.UpdateSale(ctx, sale)
	}, attribute.Int("sale_id", saleId))
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// recordFiscalFailure bumps the attempt counter in its own short unit of work.
func (l *Ledger) recordFiscalFailure(ctx context.Context, saleId int, cause error) error {
	return l.Store.Transaction(ctx, func(tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, saleId)
		if err != nil {
			return err
		}
		msg := cause.Error()
		sale.FiscalAttempts++
		sale.LastFiscalError = &msg
		return tx.UpdateSale(ctx, sale)
	})
}

// isTerminalFiscalError reports failures that redelivery cannot fix.
func isTerminalFiscalError(err error) bool {
	var rejected *fiscal.RejectedError
	var validation *models.ValidationError
	return errors.As(err, &rejected) ||
		errors.As(err, &validation) ||
		errors.Is(err, models.ErrRecordNotFound)
}

// ProcessFiscalMessage authorizes the sale named by msg at most once per
// message. Terminal failures are recorded and acknowledged; the caller should
// redeliver any other error.
func (l *Ledger) ProcessFiscalMessage(ctx context.Context, msg config.FiscalMessage) error {
	if msg.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, msg.CorrelationId)
	}
	messageId := strconv.Itoa(msg.ID)

	var skip bool
	err := l.Store.Transaction(ctx, func(tx repository.Tx) error {
		var err error
		skip, err = BeginIdempotency(ctx, tx, FiscalHandlerName, messageId, l.clock())
		return err
	})
	if err != nil || skip {
		return err
	}

	_, authErr := l.AuthorizeFiscal(ctx, msg.SaleId)
	err = l.Store.Transaction(ctx, func(tx repository.Tx) error {
		if authErr != nil {
			return MarkIdempotencyFailed(ctx, tx, FiscalHandlerName, messageId, authErr)
		}
		return MarkIdempotencySucceeded(ctx, tx, FiscalHandlerName, messageId)
	})
	if err != nil {
		return err
	}
	if authErr != nil && !isTerminalFiscalError(authErr) {
		return authErr
	}
	if authErr != nil && l.Logger != nil {
		l.Logger.WithFields(logrus.Fields{
			"field":      "ProcessFiscalMessage",
			"sale_id":    msg.SaleId,
			"message_id": messageId,
		}).Warn("fiscal message dropped: " + authErr.Error())
	}
	return nil
}

// EnqueueUnauthorizedFiscalSales writes outbox rows for active fiscal sales
// that still have no CAE and nothing waiting in the outbox.
func (l *Ledger) EnqueueUnauthorizedFiscalSales(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	enqueued := 0
	err := l.transaction(ctx, "EnqueueUnauthorizedFiscalSales", func(ctx context.Context, tx repository.Tx) error {
		sales, err := tx.ListUnauthorizedFiscalSales(ctx, limit)
		if err != nil {
			return err
		}
		for i := range sales {
			open, err := tx.HasOpenOutboxRecord(ctx, sales[i].ID)
			if err != nil {
				return err
			}
			if open {
				continue
			}
			if err := l.enqueueFiscal(ctx, tx, &sales[i]); err != nil {
				return err
			}
			enqueued++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return enqueued, nil
}
