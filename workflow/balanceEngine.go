package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

// stockChange is one signed change to a (product, branch) stock row.
type stockChange struct {
	ProductId          int
	BranchId           int
	Delta              decimal.Decimal
	Reason             string
	ReferenceType      models.StockReferenceType
	ReferenceId        *int
	ReversesMovementId *int
}

// adjustStock locks the stock row, appends the movement and refreshes the cached balance.
// Negative stock is allowed and only logged.
func (l *Ledger) adjustStock(ctx context.Context, tx repository.Tx, change stockChange) (*models.StockMovement, error) {
	stock, err := tx.LockStock(ctx, change.ProductId, change.BranchId)
	if errors.Is(err, repository.ErrLockTimeout) {
		return nil, &models.StockLockTimeout{ProductId: change.ProductId, BranchId: change.BranchId}
	}
	if err != nil {
		return nil, err
	}

	previous := stock.CurrentStock
	next := previous.Add(change.Delta)
	movement := &models.StockMovement{
		ProductId:           change.ProductId,
		BranchId:            change.BranchId,
		Quantity:            change.Delta,
		PreviousBalance:     previous,
		CurrentStockBalance: next,
		Reason:              change.Reason,
		ReferenceType:       change.ReferenceType,
		ReferenceId:         change.ReferenceId,
		ReversesMovementId:  change.ReversesMovementId,
		CreatedBy:           actor(ctx),
	}
	if err := tx.CreateStockMovement(ctx, movement); err != nil {
		return nil, err
	}
	stock.CurrentStock = next
	if err := tx.SaveStock(ctx, stock); err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"field":      "BalanceEngine",
		"product_id": change.ProductId,
		"branch_id":  change.BranchId,
		"balance":    next.String(),
	}
	if next.IsNegative() {
		l.warn(fields, "stock went negative")
	}
	if stock.BelowMinimum() {
		movement.BelowMinimum = true
		l.warn(fields, "stock below minimum")
	}
	return movement, nil
}

// AdjustStock applies a manual stock correction.
func (l *Ledger) AdjustStock(ctx context.Context, input models.NewStockAdjustment) (*models.StockMovement, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Quantity.IsZero() {
		return nil, models.NewValidationError("quantity", "must not be zero")
	}

	var movement *models.StockMovement
	err := l.transaction(ctx, "AdjustStock", func(ctx context.Context, tx repository.Tx) error {
		product, err := tx.GetProduct(ctx, input.ProductId)
		if errors.Is(err, models.ErrRecordNotFound) {
			return models.NewValidationError("product_id", "product %d does not exist", input.ProductId)
		}
		if err != nil {
			return err
		}
		if product.IsCombo {
			return models.NewValidationError("product_id", "combo %d has no stock of its own", product.ID)
		}
		if _, err := tx.GetBranch(ctx, input.BranchId); err != nil {
			if errors.Is(err, models.ErrRecordNotFound) {
				return models.NewValidationError("branch_id", "branch %d does not exist", input.BranchId)
			}
			return err
		}
		movement, err = l.adjustStock(ctx, tx, stockChange{
			ProductId:     input.ProductId,
			BranchId:      input.BranchId,
			Delta:         input.Quantity,
			Reason:        input.Reason,
			ReferenceType: models.StockReferenceAdjustment,
		})
		return err
	}, attribute.Int("product_id", input.ProductId), attribute.Int("branch_id", input.BranchId))
	if errors.Is(err, repository.ErrLockTimeout) {
		return nil, &models.StockLockTimeout{ProductId: input.ProductId, BranchId: input.BranchId}
	}
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// applySaleStock decrements stock for every sold line. Combos move their
// components. Rows are locked in product id order.
func (l *Ledger) applySaleStock(ctx context.Context, tx repository.Tx, sale *models.Sale) error {
	deltas := map[int]decimal.Decimal{}
	for _, item := range sale.Items {
		product, err := tx.GetProduct(ctx, item.ProductId)
		if err != nil {
			return fmt.Errorf("load product %d: %w", item.ProductId, err)
		}
		for productId, delta := range product.StockDeltas(item.Quantity) {
			deltas[productId] = deltas[productId].Add(delta)
		}
	}

	productIds := make([]int, 0, len(deltas))
	for id := range deltas {
		productIds = append(productIds, id)
	}
	sort.Ints(productIds)

	for _, productId := range productIds {
		if deltas[productId].IsZero() {
			continue
		}
		if _, err := l.adjustStock(ctx, tx, stockChange{
			ProductId:     productId,
			BranchId:      sale.BranchId,
			Delta:         deltas[productId],
			Reason:        describe(LedgerReasonSale, sale.ReceiptNumberFormatted),
			ReferenceType: models.StockReferenceSale,
			ReferenceId:   intPtr(sale.ID),
		}); err != nil {
			return err
		}
	}
	return nil
}

// resolveRegister returns the locked register that receives cash for branchId:
// the requested one, or the branch's open register.
func resolveRegister(ctx context.Context, tx repository.Tx, branchId int, registerId *int) (*models.CashRegister, error) {
	if registerId == nil {
		open, err := tx.FindOpenCashRegister(ctx, branchId)
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, models.NewValidationError("cash_register_id", "branch %d has no open cash register", branchId)
		}
		if err != nil {
			return nil, err
		}
		registerId = &open.ID
	}
	register, err := tx.LockCashRegister(ctx, *registerId)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, models.NewValidationError("cash_register_id", "cash register %d does not exist", *registerId)
	}
	if err != nil {
		return nil, err
	}
	if !register.IsOpen() {
		return nil, models.NewValidationError("cash_register_id", "cash register %d is closed", register.ID)
	}
	if register.BranchId != branchId {
		return nil, models.NewValidationError("cash_register_id", "cash register %d belongs to branch %d", register.ID, register.BranchId)
	}
	return register, nil
}

// chargeAccount appends an entrada movement, enforcing the credit limit.
func (l *Ledger) chargeAccount(ctx context.Context, tx repository.Tx, account *models.CurrentAccount, movementType *models.MovementType, amount decimal.Decimal, description string, saleId *int) (*models.CurrentAccountMovement, error) {
	if account.Status != models.AccountStatusActive {
		return nil, models.NewValidationError("current_account", "account %d is %s", account.ID, account.Status)
	}
	next := account.CurrentBalance.Sub(amount)
	if !account.WithinCreditLimit(next) {
		return nil, &models.InsufficientCredit{
			AccountId: account.ID,
			Requested: amount,
			Available: *account.AvailableCredit(),
		}
	}
	return l.appendAccountMovement(ctx, tx, account, movementType.ID, models.OperationTypeEntrada, amount, description, saleId, nil)
}

// appendAccountMovement writes the ledger row and the cached balance together.
func (l *Ledger) appendAccountMovement(ctx context.Context, tx repository.Tx, account *models.CurrentAccount, movementTypeId int, op models.OperationType, amount decimal.Decimal, description string, saleId *int, reverses *int) (*models.CurrentAccountMovement, error) {
	before := account.CurrentBalance
	after := before.Add(models.AccountSignedAmount(op, amount))
	movement := &models.CurrentAccountMovement{
		CurrentAccountId:   account.ID,
		MovementTypeId:     movementTypeId,
		OperationType:      op,
		Amount:             amount,
		BalanceBefore:      before,
		BalanceAfter:       after,
		Description:        description,
		SaleId:             saleId,
		ReversesMovementId: reverses,
		CreatedBy:          actor(ctx),
	}
	if err := tx.CreateAccountMovement(ctx, movement); err != nil {
		return nil, err
	}
	account.CurrentBalance = after
	if err := tx.SaveCurrentAccount(ctx, account); err != nil {
		return nil, err
	}
	return movement, nil
}

// appendCashMovement writes the movement and folds it into the register caches.
func appendCashMovement(ctx context.Context, tx repository.Tx, register *models.CashRegister, movement *models.CashMovement) error {
	movement.CashRegisterId = register.ID
	movement.CreatedBy = actor(ctx)
	if err := tx.CreateCashMovement(ctx, movement); err != nil {
		return err
	}
	register.Apply(movement)
	return tx.SaveCashRegister(ctx, register)
}

type resolvedPayment struct {
	method *models.PaymentMethod
	amount decimal.Decimal
}

// applyPayments allocates payment lines to the sale. Cash lines go to a cash
// register, current-account lines charge the customer's account, other
// methods only record the SalePayment. Over-payment is returned as change
// and may only come out of cash.
func (l *Ledger) applyPayments(ctx context.Context, tx repository.Tx, sale *models.Sale, payments []models.NewPayment, registerId *int) error {
	if len(payments) == 0 {
		return nil
	}

	lines := make([]resolvedPayment, 0, len(payments))
	tendered := decimal.Zero
	cashTendered := decimal.Zero
	for i, p := range payments {
		if !p.Amount.IsPositive() {
			return models.NewValidationError(fmt.Sprintf("payments[%d].amount", i), "must be greater than zero")
		}
		method, err := tx.GetPaymentMethod(ctx, p.PaymentMethodId)
		if errors.Is(err, models.ErrRecordNotFound) {
			return models.NewValidationError(fmt.Sprintf("payments[%d].payment_method_id", i), "payment method %d does not exist", p.PaymentMethodId)
		}
		if err != nil {
			return err
		}
		if method.IsActive != nil && !*method.IsActive {
			return models.NewValidationError(fmt.Sprintf("payments[%d].payment_method_id", i), "payment method %s is inactive", method.Code)
		}
		lines = append(lines, resolvedPayment{method: method, amount: p.Amount})
		tendered = tendered.Add(p.Amount)
		if method.AffectsCash {
			cashTendered = cashTendered.Add(p.Amount)
		}
	}

	outstanding := sale.Outstanding()
	change := decimal.Zero
	if tendered.GreaterThan(outstanding) {
		change = tendered.Sub(outstanding)
	}
	if change.GreaterThan(cashTendered) {
		return models.NewValidationError("payments", "payments exceed the outstanding %s and only cash can give change", outstanding.StringFixed(2))
	}
	// Change comes out of the last cash lines first.
	remaining := change
	for i := len(lines) - 1; i >= 0 && remaining.IsPositive(); i-- {
		if !lines[i].method.AffectsCash {
			continue
		}
		taken := decimal.Min(lines[i].amount, remaining)
		lines[i].amount = lines[i].amount.Sub(taken)
		remaining = remaining.Sub(taken)
	}

	// Register before account, the order every payment path locks in.
	var register *models.CashRegister
	var account *models.CurrentAccount
	for _, line := range lines {
		if !line.amount.IsPositive() {
			continue
		}
		switch {
		case line.method.AffectsCash && register == nil:
			r, err := resolveRegister(ctx, tx, sale.BranchId, registerId)
			if err != nil {
				return err
			}
			register = r
		case line.method.AffectsAccount && sale.CustomerId == nil:
			return models.NewValidationError("customer_id", "current account payments need a customer")
		}
	}
	for _, line := range lines {
		if !line.amount.IsPositive() || !line.method.AffectsAccount || account != nil {
			continue
		}
		a, err := tx.LockCurrentAccountByOwner(ctx, models.CustomerOwner(*sale.CustomerId))
		if errors.Is(err, models.ErrRecordNotFound) {
			return models.NewValidationError("customer_id", "customer %d has no current account", *sale.CustomerId)
		}
		if err != nil {
			return err
		}
		account = a
	}

	for _, line := range lines {
		if !line.amount.IsPositive() {
			continue
		}
		payment := &models.SalePayment{
			SaleId:            sale.ID,
			PaymentMethodId:   line.method.ID,
			PaymentMethodCode: line.method.Code,
			Amount:            line.amount,
			CreatedBy:         actor(ctx),
		}

		switch {
		case line.method.AffectsCash:
			mt, err := movementTypeByCode(ctx, tx, models.MovementTypeSale)
			if err != nil {
				return err
			}
			movement := &models.CashMovement{
				MovementTypeId: mt.ID,
				OperationType:  mt.OperationType,
				Amount:         line.amount,
				Description:    describe(LedgerReasonSale, sale.ReceiptNumberFormatted),
				ReferenceType:  models.CashReferenceSale,
				ReferenceId:    intPtr(sale.ID),
			}
			if err := appendCashMovement(ctx, tx, register, movement); err != nil {
				return err
			}
			payment.CashMovementId = intPtr(movement.ID)
			sale.CashRegisterId = intPtr(register.ID)

		case line.method.AffectsAccount:
			mt, err := movementTypeByCode(ctx, tx, models.MovementTypeAccountSale)
			if err != nil {
				return err
			}
			movement, err := l.chargeAccount(ctx, tx, account, mt, line.amount, describe(LedgerReasonSale, sale.ReceiptNumberFormatted), intPtr(sale.ID))
			if err != nil {
				return err
			}
			payment.AccountMovementId = intPtr(movement.ID)
		}

		if err := tx.CreateSalePayment(ctx, payment); err != nil {
			return err
		}
		sale.Payments = append(sale.Payments, *payment)
		sale.PaidTotal = sale.PaidTotal.Add(line.amount)
	}

	sale.ChangeAmount = sale.ChangeAmount.Add(change)
	sale.RefreshPaymentStatus()
	return tx.UpdateSale(ctx, sale)
}

// ApplySalePayment records payments against an active sale.
func (l *Ledger) ApplySalePayment(ctx context.Context, saleId int, input models.SalePaymentInput) (*models.Sale, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if len(input.Payments) == 0 {
		return nil, models.NewValidationError("payments", "at least one payment is required")
	}

	var sale *models.Sale
	err := l.transaction(ctx, "ApplySalePayment", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, saleId)
		if err != nil {
			return err
		}
		if sale.IsBudget() {
			return models.NewValidationError("sale_id", "budgets cannot be paid; convert the budget first")
		}
		if sale.Status != models.SaleStatusActive {
			return models.NewValidationError("sale_id", "sale %d is %s and cannot receive payments", sale.ID, sale.Status)
		}
		if !sale.Outstanding().IsPositive() {
			return models.NewValidationError("sale_id", "sale %d is already paid", sale.ID)
		}
		return l.applyPayments(ctx, tx, sale, input.Payments, input.CashRegisterId)
	}, attribute.Int("sale_id", saleId))
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// annulSale appends the reversal of every stock, cash and account movement of
// the sale and marks it annulled. A converted budget stays as history. Reversals of cash taken in a register that is
// already closed go to the branch's open register.
func (l *Ledger) annulSale(ctx context.Context, tx repository.Tx, sale *models.Sale, reason string) error {
	if !sale.Status.CanTransitionTo(models.SaleStatusAnnulled) {
		return &models.InvalidStateTransition{Entity: "sale", Id: sale.ID, From: string(sale.Status), To: string(models.SaleStatusAnnulled)}
	}
	if sale.ConvertedToSaleId != nil {
		return models.NewValidationError("sale_id", "budget %d was converted into sale %d; annul that sale instead", sale.ID, *sale.ConvertedToSaleId)
	}
	description := describe(ReversalReasonSaleAnnulment, sale.ReceiptNumberFormatted)

	// Stock, registers, then accounts: the order the sale took its locks in.
	stockMovements, err := tx.ListStockMovementsByReference(ctx, models.StockReferenceSale, sale.ID)
	if err != nil {
		return err
	}
	for _, original := range stockMovements {
		if _, err := l.adjustStock(ctx, tx, stockChange{
			ProductId:          original.ProductId,
			BranchId:           original.BranchId,
			Delta:              original.Quantity.Neg(),
			Reason:             description,
			ReferenceType:      models.StockReferenceSaleAnnulment,
			ReferenceId:        intPtr(sale.ID),
			ReversesMovementId: intPtr(original.ID),
		}); err != nil {
			return err
		}
	}

	cashMovements, err := tx.ListCashMovementsByReference(ctx, models.CashReferenceSale, sale.ID)
	if err != nil {
		return err
	}
	if len(cashMovements) > 0 {
		mt, err := movementTypeByCode(ctx, tx, models.MovementTypeSaleAnnulment)
		if err != nil {
			return err
		}
		registers := map[int]*models.CashRegister{}
		for _, original := range cashMovements {
			target, ok := registers[original.CashRegisterId]
			if !ok {
				target, err = tx.LockCashRegister(ctx, original.CashRegisterId)
				if err != nil {
					return err
				}
				if !target.IsOpen() {
					target, err = resolveRegister(ctx, tx, sale.BranchId, nil)
					if err != nil {
						return fmt.Errorf("register %d is closed: %w", original.CashRegisterId, err)
					}
					if cached, seen := registers[target.ID]; seen {
						target = cached
					}
				}
				registers[original.CashRegisterId] = target
				registers[target.ID] = target
			}
			reversal := &models.CashMovement{
				MovementTypeId:     mt.ID,
				OperationType:      original.OperationType.Opposite(),
				Amount:             original.Amount,
				Description:        description,
				ReferenceType:      models.CashReferenceAnnulled,
				ReferenceId:        intPtr(sale.ID),
				ReversesMovementId: intPtr(original.ID),
			}
			if err := appendCashMovement(ctx, tx, target, reversal); err != nil {
				return err
			}
		}
	}

	accountMovements, err := tx.ListAccountMovementsBySale(ctx, sale.ID)
	if err != nil {
		return err
	}
	if len(accountMovements) > 0 {
		mt, err := movementTypeByCode(ctx, tx, models.MovementTypeAccountAnnulment)
		if err != nil {
			return err
		}
		accounts := map[int]*models.CurrentAccount{}
		for _, original := range accountMovements {
			if original.ReversesMovementId != nil {
				continue
			}
			account, ok := accounts[original.CurrentAccountId]
			if !ok {
				account, err = tx.LockCurrentAccount(ctx, original.CurrentAccountId)
				if err != nil {
					return err
				}
				accounts[account.ID] = account
			}
			if _, err := l.appendAccountMovement(ctx, tx, account, mt.ID, original.OperationType.Opposite(), original.Amount, description, intPtr(sale.ID), intPtr(original.ID)); err != nil {
				return err
			}
		}
	}

	now := l.clock()
	sale.Status = models.SaleStatusAnnulled
	sale.AnnulledBy = intPtr(actor(ctx))
	sale.AnnulledAt = &now
	sale.AnnulmentReason = &reason
	return tx.UpdateSale(ctx, sale)
}

// AnnulSale reverses an active sale. The reason is mandatory.
func (l *Ledger) AnnulSale(ctx context.Context, saleId int, input models.AnnulSaleInput) (*models.Sale, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var sale *models.Sale
	err := l.transaction(ctx, "AnnulSale", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, saleId)
		if err != nil {
			return err
		}
		return l.annulSale(ctx, tx, sale, input.Reason)
	}, attribute.Int("sale_id", saleId))
	if err != nil {
		return nil, err
	}
	return sale, nil
}
