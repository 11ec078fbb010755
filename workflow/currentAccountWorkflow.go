package workflow

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

type CurrentAccountStatement struct {
	models.CurrentAccount
	AvailableCredit *string                         `json:"available_credit"`
	Movements       []models.CurrentAccountMovement `json:"movements"`
}

func (l *Ledger) OpenCurrentAccount(ctx context.Context, input models.OpenCurrentAccountInput) (*models.CurrentAccount, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	owner := input.Owner()
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if input.CreditLimit != nil && input.CreditLimit.IsNegative() {
		return nil, models.NewValidationError("credit_limit", "cannot be negative")
	}

	var account *models.CurrentAccount
	err := l.transaction(ctx, "OpenCurrentAccount", func(ctx context.Context, tx repository.Tx) error {
		var err error
		switch owner.Type() {
		case models.OwnerTypeCustomer:
			_, err = tx.GetCustomer(ctx, owner.Id())
		case models.OwnerTypeSupplier:
			_, err = tx.GetSupplier(ctx, owner.Id())
		}
		if errors.Is(err, models.ErrRecordNotFound) {
			return models.NewValidationError("owner_id", "%s does not exist", owner)
		}
		if err != nil {
			return err
		}

		account = &models.CurrentAccount{
			OwnerType:   owner.Type(),
			OwnerId:     owner.Id(),
			CreditLimit: input.CreditLimit,
			Status:      models.AccountStatusActive,
		}
		err = tx.CreateCurrentAccount(ctx, account)
		if errors.Is(err, repository.ErrDuplicateKey) {
			return models.NewValidationError("owner_id", "%s already has a current account", owner)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RegisterAccountPayment settles part of the account balance. Cash
// collected from a customer enters the given register, or the open register
// of the acting user's branch; cash paid to a supplier leaves it.
// The register is locked before the account, in the same order sales use.
func (l *Ledger) RegisterAccountPayment(ctx context.Context, accountId int, input models.AccountPaymentInput) (*models.CurrentAccountMovement, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, models.NewValidationError("amount", "must be greater than zero")
	}

	var movement *models.CurrentAccountMovement
	err := l.transaction(ctx, "RegisterAccountPayment", func(ctx context.Context, tx repository.Tx) error {
		method, err := tx.GetPaymentMethod(ctx, input.PaymentMethodId)
		if errors.Is(err, models.ErrRecordNotFound) {
			return models.NewValidationError("payment_method_id", "payment method %d does not exist", input.PaymentMethodId)
		}
		if err != nil {
			return err
		}
		if method.AffectsAccount {
			return models.NewValidationError("payment_method_id", "an account cannot be paid with %s", method.Code)
		}

		var register *models.CashRegister
		if method.AffectsCash {
			register, err = paymentRegister(ctx, tx, input.CashRegisterId)
			if err != nil {
				return err
			}
		}

		account, err := tx.LockCurrentAccount(ctx, accountId)
		if err != nil {
			return err
		}
		if account.Status == models.AccountStatusClosed {
			return models.NewValidationError("current_account", "account %d is closed", account.ID)
		}

		reason, cashCode := LedgerReasonAccountPayment, models.MovementTypeAccountCollection
		if account.OwnerType == models.OwnerTypeSupplier {
			reason, cashCode = LedgerReasonSupplierPayment, models.MovementTypeSupplierPayment
		}
		mt, err := movementTypeByCode(ctx, tx, models.MovementTypeAccountPayment)
		if err != nil {
			return err
		}
		description := input.Description
		if description == "" {
			description = describe(reason, method.Name)
		}
		movement, err = l.appendAccountMovement(ctx, tx, account, mt.ID, mt.OperationType, input.Amount, description, nil, nil)
		if err != nil {
			return err
		}

		if register == nil {
			return nil
		}
		cashType, err := movementTypeByCode(ctx, tx, cashCode)
		if err != nil {
			return err
		}
		return appendCashMovement(ctx, tx, register, &models.CashMovement{
			MovementTypeId: cashType.ID,
			OperationType:  cashType.OperationType,
			Amount:         input.Amount,
			Description:    description,
			ReferenceType:  models.CashReferenceAccountPayment,
			ReferenceId:    intPtr(movement.ID),
		})
	}, attribute.Int("current_account_id", accountId))
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// paymentRegister locks the requested register, or the open register of the
// acting user's branch.
func paymentRegister(ctx context.Context, tx repository.Tx, registerId *int) (*models.CashRegister, error) {
	if registerId != nil {
		current, err := tx.GetCashRegister(ctx, *registerId)
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil, models.NewValidationError("cash_register_id", "cash register %d does not exist", *registerId)
		}
		if err != nil {
			return nil, err
		}
		return resolveRegister(ctx, tx, current.BranchId, registerId)
	}
	branchId, ok := utils.GetBranchIdFromContext(ctx)
	if !ok || branchId == 0 {
		return nil, models.NewValidationError("cash_register_id", "required for cash payments")
	}
	return resolveRegister(ctx, tx, branchId, nil)
}

// AdjustAccountBalance posts a signed correction. Negative amounts charge the
// account and respect the credit limit.
func (l *Ledger) AdjustAccountBalance(ctx context.Context, accountId int, input models.AccountAdjustmentInput) (*models.CurrentAccountMovement, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Amount.IsZero() {
		return nil, models.NewValidationError("amount", "must not be zero")
	}

	var movement *models.CurrentAccountMovement
	err := l.transaction(ctx, "AdjustAccountBalance", func(ctx context.Context, tx repository.Tx) error {
		account, err := tx.LockCurrentAccount(ctx, accountId)
		if err != nil {
			return err
		}
		if input.Amount.IsNegative() {
			mt, err := movementTypeByCode(ctx, tx, models.MovementTypeAccountAdjustCharge)
			if err != nil {
				return err
			}
			movement, err = l.chargeAccount(ctx, tx, account, mt, input.Amount.Abs(), input.Description, nil)
			return err
		}
		if account.Status == models.AccountStatusClosed {
			return models.NewValidationError("current_account", "account %d is closed", account.ID)
		}
		mt, err := movementTypeByCode(ctx, tx, models.MovementTypeAccountAdjustCredit)
		if err != nil {
			return err
		}
		movement, err = l.appendAccountMovement(ctx, tx, account, mt.ID, mt.OperationType, input.Amount, input.Description, nil, nil)
		return err
	}, attribute.Int("current_account_id", accountId))
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// ChangeAccountStatus moves the account through active, suspended and closed.
// Only a settled account can be closed.
func (l *Ledger) ChangeAccountStatus(ctx context.Context, accountId int, status models.AccountStatus) (*models.CurrentAccount, error) {
	if !status.IsValid() {
		return nil, models.NewValidationError("status", "unknown account status %q", status)
	}

	var account *models.CurrentAccount
	err := l.transaction(ctx, "ChangeAccountStatus", func(ctx context.Context, tx repository.Tx) error {
		var err error
		account, err = tx.LockCurrentAccount(ctx, accountId)
		if err != nil {
			return err
		}
		if !account.Status.CanTransitionTo(status) {
			return &models.InvalidStateTransition{Entity: "current_account", Id: account.ID, From: string(account.Status), To: string(status)}
		}
		if status == models.AccountStatusClosed && !account.CurrentBalance.IsZero() {
			return models.NewValidationError("status", "account %d has balance %s and cannot be closed", account.ID, account.CurrentBalance.StringFixed(2))
		}
		account.Status = status
		return tx.SaveCurrentAccount(ctx, account)
	}, attribute.Int("current_account_id", accountId))
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (l *Ledger) GetCurrentAccount(ctx context.Context, accountId int) (*CurrentAccountStatement, error) {
	var statement CurrentAccountStatement
	err := l.view(ctx, "GetCurrentAccount", func(ctx context.Context, tx repository.Tx) error {
		account, err := tx.GetCurrentAccount(ctx, accountId)
		if err != nil {
			return err
		}
		movements, err := tx.ListAccountMovements(ctx, accountId)
		if err != nil {
			return err
		}
		statement = CurrentAccountStatement{CurrentAccount: *account, Movements: movements}
		if available := account.AvailableCredit(); available != nil {
			s := available.StringFixed(2)
			statement.AvailableCredit = &s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &statement, nil
}
