package repository

import (
	"context"
	"errors"

	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func (t *gormTx) LockStock(ctx context.Context, productId int, branchId int) (*models.Stock, error) {
	stock, err := take[models.Stock](t.forUpdate(ctx), "product_id = ? AND branch_id = ?", productId, branchId)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, models.ErrRecordNotFound) {
		return nil, err
	}
	// First movement for this product at this branch: create the row, tolerating a concurrent creator.
	row := models.Stock{ProductId: productId, BranchId: branchId}
	if err := t.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, translate(err)
	}
	return take[models.Stock](t.forUpdate(ctx), "product_id = ? AND branch_id = ?", productId, branchId)
}

func (t *gormTx) SaveStock(ctx context.Context, stock *models.Stock) error {
	return translate(t.conn(ctx).Save(stock).Error)
}

func (t *gormTx) ListStocks(ctx context.Context) ([]models.Stock, error) {
	var stocks []models.Stock
	if err := t.conn(ctx).Order("id ASC").Find(&stocks).Error; err != nil {
		return nil, translate(err)
	}
	return stocks, nil
}

func (t *gormTx) CreateStockMovement(ctx context.Context, movement *models.StockMovement) error {
	return create(t.conn(ctx), movement)
}

func (t *gormTx) ListStockMovements(ctx context.Context, productId int, branchId int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := t.conn(ctx).
		Where("product_id = ? AND branch_id = ?", productId, branchId).
		Order("id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, translate(err)
	}
	return movements, nil
}

func (t *gormTx) ListStockMovementsByReference(ctx context.Context, referenceType models.StockReferenceType, referenceId int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := t.conn(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, translate(err)
	}
	return movements, nil
}
