package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func (t *gormTx) CreateCashRegister(ctx context.Context, register *models.CashRegister) error {
	return create(t.conn(ctx), register)
}

func (t *gormTx) GetCashRegister(ctx context.Context, id int) (*models.CashRegister, error) {
	return take[models.CashRegister](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) LockCashRegister(ctx context.Context, id int) (*models.CashRegister, error) {
	return take[models.CashRegister](t.forUpdate(ctx), "id = ?", id)
}

func (t *gormTx) FindOpenCashRegister(ctx context.Context, branchId int) (*models.CashRegister, error) {
	var register models.CashRegister
	err := t.conn(ctx).
		Where("branch_id = ? AND status = ?", branchId, models.CashRegisterStatusOpen).
		Order("id DESC").
		Take(&register).Error
	if err != nil {
		return nil, translate(err)
	}
	return &register, nil
}

func (t *gormTx) ListOpenCashRegisters(ctx context.Context, branchIds []int) ([]models.CashRegister, error) {
	var registers []models.CashRegister
	err := t.conn(ctx).
		Where("branch_id IN ? AND status = ?", branchIds, models.CashRegisterStatusOpen).
		Order("id ASC").
		Find(&registers).Error
	if err != nil {
		return nil, translate(err)
	}
	return registers, nil
}

func (t *gormTx) ListCashRegisters(ctx context.Context) ([]models.CashRegister, error) {
	var registers []models.CashRegister
	if err := t.conn(ctx).Order("id ASC").Find(&registers).Error; err != nil {
		return nil, translate(err)
	}
	return registers, nil
}

func (t *gormTx) SaveCashRegister(ctx context.Context, register *models.CashRegister) error {
	return translate(t.conn(ctx).Save(register).Error)
}

func (t *gormTx) CreateCashMovement(ctx context.Context, movement *models.CashMovement) error {
	return create(t.conn(ctx), movement)
}

func (t *gormTx) ListCashMovements(ctx context.Context, registerId int) ([]models.CashMovement, error) {
	var movements []models.CashMovement
	if err := t.conn(ctx).Where("cash_register_id = ?", registerId).Order("id ASC").Find(&movements).Error; err != nil {
		return nil, translate(err)
	}
	return movements, nil
}

func (t *gormTx) ListCashMovementsByReference(ctx context.Context, referenceType models.CashReferenceType, referenceId int) ([]models.CashMovement, error) {
	var movements []models.CashMovement
	err := t.conn(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, translate(err)
	}
	return movements, nil
}
