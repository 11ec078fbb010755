package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

// priceItems snapshots every product into sale lines and computes the header totals.
func priceItems(ctx context.Context, tx repository.Tx, items []models.NewSaleItem, discountType *models.DiscountType, discountValue decimal.Decimal) ([]models.SaleItem, models.SaleTotals, error) {
	lines := make([]models.SaleItem, 0, len(items))
	for i, input := range items {
		product, err := tx.GetProduct(ctx, input.ProductId)
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, models.SaleTotals{}, models.NewValidationError(fmt.Sprintf("items[%d].product_id", i), "product %d does not exist", input.ProductId)
		}
		if err != nil {
			return nil, models.SaleTotals{}, err
		}
		if product.IsActive != nil && !*product.IsActive {
			return nil, models.SaleTotals{}, models.NewValidationError(fmt.Sprintf("items[%d].product_id", i), "product %d is inactive", product.ID)
		}
		line, err := models.PriceSaleItem(product, input)
		if err != nil {
			return nil, models.SaleTotals{}, err
		}
		lines = append(lines, line)
	}
	totals, err := models.ComputeSaleTotals(lines, discountType, discountValue)
	if err != nil {
		return nil, models.SaleTotals{}, err
	}
	return lines, totals, nil
}

// insertNumbered allocates the receipt number and inserts the sale with it.
func (l *Ledger) insertNumbered(ctx context.Context, tx repository.Tx, branch *models.Branch, sale *models.Sale) (*models.ReceiptTypeSetting, error) {
	number, err := l.Numbering.Allocate(ctx, tx, branch, sale.NumberingScope, sale.ReceiptType, func(rn ReceiptNumber) error {
		sale.ReceiptNumber = rn.Number
		sale.ReceiptNumberFormatted = rn.Formatted
		return tx.CreateSale(ctx, sale)
	})
	if err != nil {
		return nil, err
	}
	return number.Setting, nil
}

// activate applies the ledger effects of a sale entering the active state.
func (l *Ledger) activate(ctx context.Context, tx repository.Tx, sale *models.Sale, setting *models.ReceiptTypeSetting, payments []models.NewPayment, registerId *int) error {
	sale.Status = models.SaleStatusActive
	if err := tx.UpdateSale(ctx, sale); err != nil {
		return err
	}
	if err := l.applySaleStock(ctx, tx, sale); err != nil {
		return err
	}
	if err := l.applyPayments(ctx, tx, sale, payments, registerId); err != nil {
		return err
	}
	if setting != nil && setting.IsFiscal {
		return l.enqueueFiscal(ctx, tx, sale)
	}
	return nil
}

func loadBranch(ctx context.Context, tx repository.Tx, branchId int) (*models.Branch, error) {
	branch, err := tx.GetBranch(ctx, branchId)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, models.NewValidationError("branch_id", "branch %d does not exist", branchId)
	}
	if err != nil {
		return nil, err
	}
	if branch.IsActive != nil && !*branch.IsActive {
		return nil, models.NewValidationError("branch_id", "branch %d is inactive", branchId)
	}
	return branch, nil
}

// CreateSale prices and numbers a new sale or budget.
//
// A sale without approval becomes active immediately and moves stock and
// payments. A sale that requires approval stays pending with no ledger
// effects. A budget (scope presupuesto) is active but never touches the ledger.
func (l *Ledger) CreateSale(ctx context.Context, input models.NewSale) (*models.Sale, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var sale *models.Sale
	err := l.transaction(ctx, "CreateSale", func(ctx context.Context, tx repository.Tx) error {
		branch, err := loadBranch(ctx, tx, input.BranchId)
		if err != nil {
			return err
		}
		setting, err := l.Numbering.ReceiptSetting(ctx, tx, branch.ID, input.ReceiptType)
		if err != nil {
			return err
		}
		scope := input.NumberingScope
		if scope == "" {
			scope = models.NumberingScopeSale
			if setting != nil && setting.NumberingScope != "" {
				scope = setting.NumberingScope
			}
		}
		if !scope.IsValid() {
			return models.NewValidationError("numbering_scope", "unknown numbering scope %q", scope)
		}
		budget := scope == models.NumberingScopeBudget
		if budget && input.RequiresApproval {
			return models.NewValidationError("requires_approval", "budgets are not approved")
		}
		if len(input.Payments) > 0 && (budget || input.RequiresApproval) {
			return models.NewValidationError("payments", "payments are only accepted on sales that become active")
		}
		if input.CustomerId != nil {
			if _, err := tx.GetCustomer(ctx, *input.CustomerId); err != nil {
				if errors.Is(err, models.ErrRecordNotFound) {
					return models.NewValidationError("customer_id", "customer %d does not exist", *input.CustomerId)
				}
				return err
			}
		}

		items, totals, err := priceItems(ctx, tx, input.Items, input.DiscountType, input.DiscountValue)
		if err != nil {
			return err
		}

		saleDate := l.clock()
		if input.SaleDate != nil {
			saleDate = input.SaleDate.UTC()
		}
		status := models.SaleStatusActive
		if input.RequiresApproval {
			status = models.SaleStatusPending
		}
		sale = &models.Sale{
			BranchId:         branch.ID,
			NumberingScope:   scope,
			ReceiptType:      input.ReceiptType,
			CustomerId:       input.CustomerId,
			SaleDate:         saleDate,
			Subtotal:         totals.Subtotal,
			DiscountType:     input.DiscountType,
			DiscountValue:    input.DiscountValue,
			DiscountAmount:   totals.DiscountAmount,
			TaxAmount:        totals.TaxAmount,
			Total:            totals.Total,
			PaymentStatus:    models.PaymentStatusPending,
			Status:           status,
			RequiresApproval: input.RequiresApproval,
			CreatedBy:        actor(ctx),
			Notes:            input.Notes,
			Items:            items,
		}
		sale.RefreshPaymentStatus()
		if _, err := l.insertNumbered(ctx, tx, branch, sale); err != nil {
			return err
		}
		if budget || status == models.SaleStatusPending {
			return nil
		}
		return l.activate(ctx, tx, sale, setting, input.Payments, input.CashRegisterId)
	}, attribute.Int("branch_id", input.BranchId), attribute.String("receipt_type", input.ReceiptType))
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// Approve moves a pending sale to approved. The actor needs sales.approve.
func (l *Ledger) Approve(ctx context.Context, saleId int) (*models.Sale, error) {
	if !utils.HasPermission(ctx, PermissionApproveSales) {
		return nil, &models.PermissionDenied{Permission: PermissionApproveSales}
	}
	var sale *models.Sale
	err := l.transaction(ctx, "ApproveSale", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, saleId)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransitionTo(models.SaleStatusApproved) {
			return &models.InvalidStateTransition{Entity: "sale", Id: sale.ID, From: string(sale.Status), To: string(models.SaleStatusApproved)}
		}
		now := l.clock()
		sale.Status = models.SaleStatusApproved
		sale.ApprovedBy = intPtr(actor(ctx))
		sale.ApprovedAt = &now
		return tx.UpdateSale(ctx, sale)
	}, attribute.Int("sale_id", saleId))
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// Complete activates an approved sale: stock moves and payments are applied.
func (l *Ledger) Complete(ctx context.Context, saleId int, input models.SalePaymentInput) (*models.Sale, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	var sale *models.Sale
	err := l.transaction(ctx, "CompleteSale", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, saleId)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransitionTo(models.SaleStatusActive) {
			return &models.InvalidStateTransition{Entity: "sale", Id: sale.ID, From: string(sale.Status), To: string(models.SaleStatusActive)}
		}
		setting, err := l.Numbering.ReceiptSetting(ctx, tx, sale.BranchId, sale.ReceiptType)
		if err != nil {
			return err
		}
		return l.activate(ctx, tx, sale, setting, input.Payments, input.CashRegisterId)
	}, attribute.Int("sale_id", saleId))
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// Reject closes a pending sale. The reason is mandatory.
func (l *Ledger) Reject(ctx context.Context, saleId int, input models.RejectSaleInput) (*models.Sale, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	var sale *models.Sale
	err := l.transaction(ctx, "RejectSale", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.LockSale(ctx, saleId)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransitionTo(models.SaleStatusRejected) {
			return &models.InvalidStateTransition{Entity: "sale", Id: sale.ID, From: string(sale.Status), To: string(models.SaleStatusRejected)}
		}
		now := l.clock()
		reason := input.Reason
		sale.Status = models.SaleStatusRejected
		sale.RejectedBy = intPtr(actor(ctx))
		sale.RejectedAt = &now
		sale.RejectionReason = &reason
		return tx.UpdateSale(ctx, sale)
	}, attribute.Int("sale_id", saleId))
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// Annul reverses an active sale through the balance engine.
func (l *Ledger) Annul(ctx context.Context, saleId int, input models.AnnulSaleInput) (*models.Sale, error) {
	return l.AnnulSale(ctx, saleId, input)
}

// ConvertBudget turns a budget into a new active sale with its own receipt
// number. The budget keeps its totals and only records the link.
func (l *Ledger) ConvertBudget(ctx context.Context, budgetId int, input models.ConvertBudgetInput) (*models.Sale, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if len(input.Payments) > 0 && input.CashRegisterId == nil {
		return nil, models.NewValidationError("cash_register_id", "required to allocate payments on conversion")
	}

	var sale *models.Sale
	err := l.transaction(ctx, "ConvertBudget", func(ctx context.Context, tx repository.Tx) error {
		budget, err := tx.LockSale(ctx, budgetId)
		if err != nil {
			return err
		}
		if !budget.IsBudget() {
			return models.NewValidationError("budget_id", "sale %d is not a budget", budget.ID)
		}
		if budget.Status != models.SaleStatusActive {
			return models.NewValidationError("budget_id", "budget %d is %s", budget.ID, budget.Status)
		}
		if budget.ConvertedToSaleId != nil {
			return models.NewValidationError("budget_id", "budget %d was already converted to sale %d", budget.ID, *budget.ConvertedToSaleId)
		}
		branch, err := loadBranch(ctx, tx, budget.BranchId)
		if err != nil {
			return err
		}

		receiptType := input.ReceiptType
		if receiptType == "" {
			receiptType = budget.ReceiptType
		}
		setting, err := l.Numbering.ReceiptSetting(ctx, tx, branch.ID, receiptType)
		if err != nil {
			return err
		}
		if setting != nil && setting.NumberingScope == models.NumberingScopeBudget {
			return models.NewValidationError("receipt_type", "%s numbers budgets; choose a sale receipt type", receiptType)
		}

		items := make([]models.SaleItem, len(budget.Items))
		for i, item := range budget.Items {
			item.ID = 0
			item.SaleId = 0
			items[i] = item
		}
		sale = &models.Sale{
			BranchId:              branch.ID,
			NumberingScope:        models.NumberingScopeSale,
			ReceiptType:           receiptType,
			CustomerId:            budget.CustomerId,
			SaleDate:              l.clock(),
			Subtotal:              budget.Subtotal,
			DiscountType:          budget.DiscountType,
			DiscountValue:         budget.DiscountValue,
			DiscountAmount:        budget.DiscountAmount,
			TaxAmount:             budget.TaxAmount,
			Total:                 budget.Total,
			PaymentStatus:         models.PaymentStatusPending,
			Status:                models.SaleStatusActive,
			CreatedBy:             actor(ctx),
			ConvertedFromBudgetId: intPtr(budget.ID),
			Notes:                 budget.Notes,
			Items:                 items,
		}
		sale.RefreshPaymentStatus()
		if _, err := l.insertNumbered(ctx, tx, branch, sale); err != nil {
			return err
		}

		now := l.clock()
		budget.ConvertedToSaleId = intPtr(sale.ID)
		budget.ConvertedAt = &now
		if err := tx.UpdateSale(ctx, budget); err != nil {
			return err
		}
		return l.activate(ctx, tx, sale, setting, input.Payments, input.CashRegisterId)
	}, attribute.Int("budget_id", budgetId))
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (l *Ledger) GetSale(ctx context.Context, saleId int) (*models.Sale, error) {
	var sale *models.Sale
	err := l.view(ctx, "GetSale", func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = tx.GetSale(ctx, saleId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}
