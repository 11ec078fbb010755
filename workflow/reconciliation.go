package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

// ReconciliationResult summarizes one ReconcileLedgers run.
type ReconciliationResult struct {
	CorrelationId     string `json:"correlation_id"`
	AccountsChecked   int    `json:"accounts_checked"`
	StocksChecked     int    `json:"stocks_checked"`
	RegistersChecked  int    `json:"registers_checked"`
	MismatchesWritten int    `json:"mismatches_written"`
}

type reconciler struct {
	tx     repository.Tx
	result *ReconciliationResult
}

func (r *reconciler) report(ctx context.Context, checkType, entityType string, entityId int, expected, actual decimal.Decimal, details string) error {
	r.result.MismatchesWritten++
	return r.tx.CreateReconciliationReport(ctx, &models.ReconciliationReport{
		CheckType:     checkType,
		EntityType:    entityType,
		EntityId:      entityId,
		Expected:      expected.String(),
		Actual:        actual.String(),
		Details:       details,
		CorrelationId: r.result.CorrelationId,
	})
}

func (r *reconciler) accounts(ctx context.Context) error {
	accounts, err := r.tx.ListCurrentAccounts(ctx)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		r.result.AccountsChecked++
		movements, err := r.tx.ListAccountMovements(ctx, account.ID)
		if err != nil {
			return err
		}
		replayed, err := models.ReplayAccountBalance(movements)
		var mismatch *models.LedgerMismatch
		if errors.As(err, &mismatch) {
			if err := r.report(ctx, models.ReconciliationCheckAccountBalance, "current_account", account.ID, mismatch.Expected, mismatch.Actual, mismatch.Error()); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if !replayed.Equal(account.CurrentBalance) {
			details := fmt.Sprintf("current_balance %s, ledger replays to %s", account.CurrentBalance.String(), replayed.String())
			if err := r.report(ctx, models.ReconciliationCheckAccountBalance, "current_account", account.ID, replayed, account.CurrentBalance, details); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reconciler) stocks(ctx context.Context) error {
	stocks, err := r.tx.ListStocks(ctx)
	if err != nil {
		return err
	}
	for _, stock := range stocks {
		r.result.StocksChecked++
		movements, err := r.tx.ListStockMovements(ctx, stock.ProductId, stock.BranchId)
		if err != nil {
			return err
		}
		replayed, err := models.ReplayStock(movements)
		var mismatch *models.LedgerMismatch
		if errors.As(err, &mismatch) {
			details := fmt.Sprintf("product %d branch %d: %s", stock.ProductId, stock.BranchId, mismatch.Error())
			if err := r.report(ctx, models.ReconciliationCheckStockBalance, "stock", stock.ID, mismatch.Expected, mismatch.Actual, details); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if !replayed.Equal(stock.CurrentStock) {
			details := fmt.Sprintf("product %d branch %d: current_stock %s, ledger replays to %s", stock.ProductId, stock.BranchId, stock.CurrentStock.String(), replayed.String())
			if err := r.report(ctx, models.ReconciliationCheckStockBalance, "stock", stock.ID, replayed, stock.CurrentStock, details); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reconciler) registers(ctx context.Context) error {
	registers, err := r.tx.ListCashRegisters(ctx)
	if err != nil {
		return err
	}
	for _, register := range registers {
		r.result.RegistersChecked++
		movements, err := r.tx.ListCashMovements(ctx, register.ID)
		if err != nil {
			return err
		}
		replayed := models.ReplayCashRegister(register, movements)
		if replayed.ExpectedBalance.Equal(register.ExpectedBalance) &&
			replayed.TotalIncome.Equal(register.TotalIncome) &&
			replayed.TotalExpenses.Equal(register.TotalExpenses) {
			continue
		}
		details := fmt.Sprintf("income %s/%s expenses %s/%s (cached/replayed)",
			register.TotalIncome.String(), replayed.TotalIncome.String(),
			register.TotalExpenses.String(), replayed.TotalExpenses.String())
		if err := r.report(ctx, models.ReconciliationCheckCashRegister, "cash_register", register.ID, replayed.ExpectedBalance, register.ExpectedBalance, details); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileLedgers replays every account, stock and register ledger against its
// cached balance and writes a ReconciliationReport per mismatch. Caches are not touched.
func (l *Ledger) ReconcileLedgers(ctx context.Context) (*ReconciliationResult, error) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if correlationId == "" {
		correlationId = uuid.NewString()
	}
	result := &ReconciliationResult{CorrelationId: correlationId}
	err := l.transaction(ctx, "ReconcileLedgers", func(ctx context.Context, tx repository.Tx) error {
		r := &reconciler{tx: tx, result: result}
		if err := r.accounts(ctx); err != nil {
			return err
		}
		if err := r.stocks(ctx); err != nil {
			return err
		}
		return r.registers(ctx)
	})
	if err != nil {
		return nil, err
	}
	if l.Logger != nil {
		l.Logger.WithFields(logrus.Fields{
			"field":          "ReconcileLedgers",
			"correlation_id": result.CorrelationId,
			"accounts":       result.AccountsChecked,
			"stocks":         result.StocksChecked,
			"registers":      result.RegistersChecked,
			"mismatches":     result.MismatchesWritten,
		}).Info("ledger reconciliation completed")
	}
	return result, nil
}

// RebuildAccountBalance rewrites the cached balance as the sum of the account's movements.
func (l *Ledger) RebuildAccountBalance(ctx context.Context, accountId int) (*models.CurrentAccount, error) {
	var account *models.CurrentAccount
	err := l.transaction(ctx, "RebuildAccountBalance", func(ctx context.Context, tx repository.Tx) error {
		var err error
		account, err = tx.LockCurrentAccount(ctx, accountId)
		if err != nil {
			return err
		}
		movements, err := tx.ListAccountMovements(ctx, account.ID)
		if err != nil {
			return err
		}
		balance := decimal.Zero
		for i := range movements {
			balance = balance.Add(movements[i].SignedAmount())
		}
		if balance.Equal(account.CurrentBalance) {
			return nil
		}
		l.warn(logrus.Fields{
			"field":      "RebuildAccountBalance",
			"account_id": account.ID,
			"cached":     account.CurrentBalance.String(),
			"rebuilt":    balance.String(),
		}, "current account balance rebuilt from ledger")
		account.CurrentBalance = balance
		return tx.SaveCurrentAccount(ctx, account)
	}, attribute.Int("account_id", accountId))
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RebuildStock rewrites the cached stock of (product, branch) as the sum of its movements.
func (l *Ledger) RebuildStock(ctx context.Context, productId, branchId int) (*models.Stock, error) {
	var stock *models.Stock
	err := l.transaction(ctx, "RebuildStock", func(ctx context.Context, tx repository.Tx) error {
		var err error
		stock, err = tx.LockStock(ctx, productId, branchId)
		if errors.Is(err, repository.ErrLockTimeout) {
			return &models.StockLockTimeout{ProductId: productId, BranchId: branchId}
		}
		if err != nil {
			return err
		}
		movements, err := tx.ListStockMovements(ctx, productId, branchId)
		if err != nil {
			return err
		}
		balance := decimal.Zero
		for i := range movements {
			balance = balance.Add(movements[i].Quantity)
		}
		if balance.Equal(stock.CurrentStock) {
			return nil
		}
		l.warn(logrus.Fields{
			"field":      "RebuildStock",
			"product_id": productId,
			"branch_id":  branchId,
			"cached":     stock.CurrentStock.String(),
			"rebuilt":    balance.String(),
		}, "stock rebuilt from ledger")
		stock.CurrentStock = balance
		return tx.SaveStock(ctx, stock)
	}, attribute.Int("product_id", productId), attribute.Int("branch_id", branchId))
	if err != nil {
		return nil, err
	}
	return stock, nil
}
