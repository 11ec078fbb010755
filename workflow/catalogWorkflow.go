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

var defaultTaxRate = decimal.NewFromInt(21)

// SeedDefaults creates the system payment methods and movement types that are missing.
func (l *Ledger) SeedDefaults(ctx context.Context) error {
	return l.transaction(ctx, "SeedDefaults", func(ctx context.Context, tx repository.Tx) error {
		for _, method := range models.DefaultPaymentMethods() {
			_, err := tx.GetPaymentMethodByCode(ctx, method.Code)
			if err == nil {
				continue
			}
			if !errors.Is(err, models.ErrRecordNotFound) {
				return err
			}
			if err := tx.CreatePaymentMethod(ctx, &method); err != nil {
				return fmt.Errorf("seed payment method %s: %w", method.Code, err)
			}
		}
		for _, movementType := range models.DefaultMovementTypes() {
			_, err := tx.GetMovementTypeByCode(ctx, movementType.Code)
			if err == nil {
				continue
			}
			if !errors.Is(err, models.ErrRecordNotFound) {
				return err
			}
			if err := tx.CreateMovementType(ctx, &movementType); err != nil {
				return fmt.Errorf("seed movement type %s: %w", movementType.Code, err)
			}
		}
		return nil
	})
}

func duplicateAsValidation(err error, field, format string, args ...any) error {
	if errors.Is(err, repository.ErrDuplicateKey) {
		return models.NewValidationError(field, format, args...)
	}
	return err
}

func (l *Ledger) CreateBranch(ctx context.Context, input models.NewBranch) (*models.Branch, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	branch := &models.Branch{
		Name:        input.Name,
		Address:     input.Address,
		PointOfSale: input.PointOfSale,
		IsActive:    utils.NewTrue(),
	}
	if branch.PointOfSale == 0 {
		branch.PointOfSale = 1
	}
	err := l.transaction(ctx, "CreateBranch", func(ctx context.Context, tx repository.Tx) error {
		return duplicateAsValidation(tx.CreateBranch(ctx, branch), "name", "branch %q already exists", input.Name)
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

func (l *Ledger) CreateReceiptTypeSetting(ctx context.Context, input models.NewReceiptTypeSetting) (*models.ReceiptTypeSetting, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	scope := input.NumberingScope
	if scope == "" {
		scope = models.NumberingScopeSale
	}
	if !scope.IsValid() {
		return nil, models.NewValidationError("numbering_scope", "unknown numbering scope %q", scope)
	}
	if input.IsFiscal && scope == models.NumberingScopeBudget {
		return nil, models.NewValidationError("is_fiscal", "budgets are never fiscal")
	}
	if input.IsFiscal && input.FiscalCode == 0 {
		return nil, models.NewValidationError("fiscal_code", "required for fiscal receipt types")
	}
	setting := &models.ReceiptTypeSetting{
		BranchId:       input.BranchId,
		ReceiptType:    input.ReceiptType,
		NumberingScope: scope,
		Prefix:         input.Prefix,
		PadWidth:       input.PadWidth,
		IsFiscal:       input.IsFiscal,
		FiscalCode:     input.FiscalCode,
	}
	if setting.PadWidth == 0 {
		setting.PadWidth = 8
	}
	err := l.transaction(ctx, "CreateReceiptTypeSetting", func(ctx context.Context, tx repository.Tx) error {
		if _, err := loadBranch(ctx, tx, input.BranchId); err != nil {
			return err
		}
		return duplicateAsValidation(tx.CreateReceiptTypeSetting(ctx, setting), "receipt_type", "%s is already configured for branch %d", input.ReceiptType, input.BranchId)
	})
	if err != nil {
		return nil, err
	}
	return setting, nil
}

// CreateProduct registers a product. Combo components must be plain products.
func (l *Ledger) CreateProduct(ctx context.Context, input models.NewProduct) (*models.Product, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Price.IsNegative() {
		return nil, models.NewValidationError("price", "cannot be negative")
	}
	if input.IsCombo != (len(input.Components) > 0) {
		return nil, models.NewValidationError("components", "combos need components and only combos may have them")
	}
	taxRate := utils.DereferencePtr(input.TaxRate, defaultTaxRate)
	if taxRate.IsNegative() {
		return nil, models.NewValidationError("tax_rate", "cannot be negative")
	}

	product := &models.Product{
		Name:     input.Name,
		Sku:      input.Sku,
		Price:    input.Price,
		TaxRate:  taxRate,
		IsCombo:  input.IsCombo,
		IsActive: utils.NewTrue(),
	}
	err := l.transaction(ctx, "CreateProduct", func(ctx context.Context, tx repository.Tx) error {
		seen := map[int]bool{}
		for i, c := range input.Components {
			field := fmt.Sprintf("components[%d]", i)
			if !c.Quantity.IsPositive() {
				return models.NewValidationError(field+".quantity", "must be greater than zero")
			}
			if seen[c.ComponentId] {
				return models.NewValidationError(field+".component_id", "product %d is listed twice", c.ComponentId)
			}
			seen[c.ComponentId] = true
			component, err := tx.GetProduct(ctx, c.ComponentId)
			if errors.Is(err, models.ErrRecordNotFound) {
				return models.NewValidationError(field+".component_id", "product %d does not exist", c.ComponentId)
			}
			if err != nil {
				return err
			}
			if component.IsCombo {
				return models.NewValidationError(field+".component_id", "combo %d cannot be nested", c.ComponentId)
			}
			product.Components = append(product.Components, models.ComboComponent{ComponentId: c.ComponentId, Quantity: c.Quantity})
		}
		return duplicateAsValidation(tx.CreateProduct(ctx, product), "sku", "sku %q already exists", input.Sku)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// SetMinimumStock sets the threshold under which stock changes are flagged.
func (l *Ledger) SetMinimumStock(ctx context.Context, input models.MinimumStockInput) (*models.Stock, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.MinStock.IsNegative() {
		return nil, models.NewValidationError("min_stock", "cannot be negative")
	}
	var stock *models.Stock
	err := l.transaction(ctx, "SetMinimumStock", func(ctx context.Context, tx repository.Tx) error {
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
		if _, err := loadBranch(ctx, tx, input.BranchId); err != nil {
			return err
		}
		stock, err = tx.LockStock(ctx, input.ProductId, input.BranchId)
		if errors.Is(err, repository.ErrLockTimeout) {
			return &models.StockLockTimeout{ProductId: input.ProductId, BranchId: input.BranchId}
		}
		if err != nil {
			return err
		}
		stock.MinStock = input.MinStock
		return tx.SaveStock(ctx, stock)
	}, attribute.Int("product_id", input.ProductId), attribute.Int("branch_id", input.BranchId))
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func (l *Ledger) CreateCustomer(ctx context.Context, input models.NewContact) (*models.Customer, error) {
	if err := input.Normalize(); err != nil {
		return nil, err
	}
	customer := input.ToCustomer()
	err := l.transaction(ctx, "CreateCustomer", func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateCustomer(ctx, customer)
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (l *Ledger) CreateSupplier(ctx context.Context, input models.NewContact) (*models.Supplier, error) {
	if err := input.Normalize(); err != nil {
		return nil, err
	}
	supplier := input.ToSupplier()
	err := l.transaction(ctx, "CreateSupplier", func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateSupplier(ctx, supplier)
	})
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

// PaymentMethodByCode resolves a seeded payment method.
func (l *Ledger) PaymentMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error) {
	var method *models.PaymentMethod
	err := l.view(ctx, "PaymentMethodByCode", func(ctx context.Context, tx repository.Tx) error {
		var err error
		method, err = tx.GetPaymentMethodByCode(ctx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// MovementTypeByCode resolves a seeded movement type.
func (l *Ledger) MovementTypeByCode(ctx context.Context, code string) (*models.MovementType, error) {
	var movementType *models.MovementType
	err := l.view(ctx, "MovementTypeByCode", func(ctx context.Context, tx repository.Tx) error {
		var err error
		movementType, err = movementTypeByCode(ctx, tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movementType, nil
}
