package workflow

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
)

// CashRegisterStatement is a register with its movements in insertion order.
type CashRegisterStatement struct {
	models.CashRegister
	Movements []models.CashMovement `json:"movements"`
}

// OpenCashRegister opens a register for a branch. A branch has at most one open register.
func (l *Ledger) OpenCashRegister(ctx context.Context, input models.OpenCashRegisterInput) (*models.CashRegister, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.OpeningBalance.IsNegative() {
		return nil, models.NewValidationError("opening_balance", "cannot be negative")
	}

	var register *models.CashRegister
	err := l.transaction(ctx, "OpenCashRegister", func(ctx context.Context, tx repository.Tx) error {
		// Locking the branch row serializes concurrent openings.
		if _, err := tx.LockBranch(ctx, input.BranchId); err != nil {
			if errors.Is(err, models.ErrRecordNotFound) {
				return models.NewValidationError("branch_id", "branch %d does not exist", input.BranchId)
			}
			return err
		}
		open, err := tx.FindOpenCashRegister(ctx, input.BranchId)
		if err == nil {
			return models.NewValidationError("branch_id", "branch %d already has open cash register %d", input.BranchId, open.ID)
		}
		if !errors.Is(err, models.ErrRecordNotFound) {
			return err
		}

		register = &models.CashRegister{
			BranchId:        input.BranchId,
			Status:          models.CashRegisterStatusOpen,
			OpenedBy:        actor(ctx),
			OpenedAt:        l.clock(),
			OpeningBalance:  input.OpeningBalance,
			ExpectedBalance: input.OpeningBalance,
			Notes:           input.Notes,
		}
		return tx.CreateCashRegister(ctx, register)
	}, attribute.Int("branch_id", input.BranchId))
	if err != nil {
		return nil, err
	}
	return register, nil
}

// RegisterCashMovement records a manual income or expense in an open register.
func (l *Ledger) RegisterCashMovement(ctx context.Context, registerId int, input models.NewCashMovement) (*models.CashMovement, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, models.NewValidationError("amount", "must be greater than zero")
	}

	var movement *models.CashMovement
	err := l.transaction(ctx, "RegisterCashMovement", func(ctx context.Context, tx repository.Tx) error {
		mt, err := tx.GetMovementType(ctx, input.MovementTypeId)
		if errors.Is(err, models.ErrRecordNotFound) {
			return models.NewValidationError("movement_type_id", "movement type %d does not exist", input.MovementTypeId)
		}
		if err != nil {
			return err
		}
		if !mt.AffectsCash {
			return models.NewValidationError("movement_type_id", "movement type %s does not affect cash", mt.Code)
		}
		switch mt.Code {
		case models.MovementTypeSale, models.MovementTypeSaleAnnulment, models.MovementTypeAccountCollection, models.MovementTypeSupplierPayment:
			return models.NewValidationError("movement_type_id", "movement type %s is recorded by the system only", mt.Code)
		}

		register, err := tx.LockCashRegister(ctx, registerId)
		if err != nil {
			return err
		}
		if !register.IsOpen() {
			return models.NewValidationError("cash_register_id", "cash register %d is closed", register.ID)
		}

		movement = &models.CashMovement{
			MovementTypeId: mt.ID,
			OperationType:  mt.OperationType,
			Amount:         input.Amount,
			Description:    input.Description,
			ReferenceType:  models.CashReferenceManual,
		}
		if err := appendCashMovement(ctx, tx, register, movement); err != nil {
			return err
		}
		if register.ExpectedBalance.IsNegative() {
			l.warn(logrus.Fields{
				"field":            "CashRegister",
				"cash_register_id": register.ID,
				"expected_balance": register.ExpectedBalance.String(),
			}, "cash register expected balance is negative")
		}
		return nil
	}, attribute.Int("cash_register_id", registerId))
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// CloseCashRegister closes an open register with the declared cash count.
// Closing is terminal.
func (l *Ledger) CloseCashRegister(ctx context.Context, registerId int, input models.CloseCashRegisterInput) (*models.CashRegister, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.DeclaredBalance.IsNegative() {
		return nil, models.NewValidationError("declared_balance", "cannot be negative")
	}

	var register *models.CashRegister
	err := l.transaction(ctx, "CloseCashRegister", func(ctx context.Context, tx repository.Tx) error {
		var err error
		register, err = tx.LockCashRegister(ctx, registerId)
		if err != nil {
			return err
		}
		if !register.IsOpen() {
			return &models.InvalidStateTransition{Entity: "cash_register", Id: register.ID, From: string(register.Status), To: string(models.CashRegisterStatusClosed)}
		}

		now := l.clock()
		declared := input.DeclaredBalance
		difference := declared.Sub(register.ExpectedBalance)
		register.Status = models.CashRegisterStatusClosed
		register.ClosedBy = intPtr(actor(ctx))
		register.ClosedAt = &now
		register.ClosingBalance = &declared
		register.Difference = &difference
		if input.Notes != "" {
			register.Notes = input.Notes
		}
		if !difference.IsZero() {
			l.warn(logrus.Fields{
				"field":            "CashRegister",
				"cash_register_id": register.ID,
				"expected_balance": register.ExpectedBalance.String(),
				"difference":       difference.String(),
			}, "cash register closed with a difference")
		}
		return tx.SaveCashRegister(ctx, register)
	}, attribute.Int("cash_register_id", registerId))
	if err != nil {
		return nil, err
	}
	return register, nil
}

func (l *Ledger) GetCashRegister(ctx context.Context, registerId int) (*CashRegisterStatement, error) {
	var statement CashRegisterStatement
	err := l.view(ctx, "GetCashRegister", func(ctx context.Context, tx repository.Tx) error {
		register, err := tx.GetCashRegister(ctx, registerId)
		if err != nil {
			return err
		}
		movements, err := tx.ListCashMovements(ctx, registerId)
		if err != nil {
			return err
		}
		statement = CashRegisterStatement{CashRegister: *register, Movements: movements}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &statement, nil
}
