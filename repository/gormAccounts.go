package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func (t *gormTx) CreateCurrentAccount(ctx context.Context, account *models.CurrentAccount) error {
	return create(t.conn(ctx), account)
}

func (t *gormTx) GetCurrentAccount(ctx context.Context, id int) (*models.CurrentAccount, error) {
	return take[models.CurrentAccount](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) LockCurrentAccount(ctx context.Context, id int) (*models.CurrentAccount, error) {
	return take[models.CurrentAccount](t.forUpdate(ctx), "id = ?", id)
}

func (t *gormTx) LockCurrentAccountByOwner(ctx context.Context, owner models.AccountOwner) (*models.CurrentAccount, error) {
	return take[models.CurrentAccount](t.forUpdate(ctx), "owner_type = ? AND owner_id = ?", owner.Type(), owner.Id())
}

func (t *gormTx) ListCurrentAccounts(ctx context.Context) ([]models.CurrentAccount, error) {
	var accounts []models.CurrentAccount
	if err := t.conn(ctx).Order("id ASC").Find(&accounts).Error; err != nil {
		return nil, translate(err)
	}
	return accounts, nil
}

func (t *gormTx) SaveCurrentAccount(ctx context.Context, account *models.CurrentAccount) error {
	return translate(t.conn(ctx).Save(account).Error)
}

func (t *gormTx) CreateAccountMovement(ctx context.Context, movement *models.CurrentAccountMovement) error {
	return create(t.conn(ctx), movement)
}

func (t *gormTx) ListAccountMovements(ctx context.Context, accountId int) ([]models.CurrentAccountMovement, error) {
	var movements []models.CurrentAccountMovement
	if err := t.conn(ctx).Where("current_account_id = ?", accountId).Order("id ASC").Find(&movements).Error; err != nil {
		return nil, translate(err)
	}
	return movements, nil
}

func (t *gormTx) ListAccountMovementsBySale(ctx context.Context, saleId int) ([]models.CurrentAccountMovement, error) {
	var movements []models.CurrentAccountMovement
	if err := t.conn(ctx).Where("sale_id = ?", saleId).Order("id ASC").Find(&movements).Error; err != nil {
		return nil, translate(err)
	}
	return movements, nil
}
