package repository

import (
	"context"
	"errors"

	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

const receiptSavePoint = "receipt_number"

func (t *gormTx) MaxReceiptNumber(ctx context.Context, branchId int, scope models.NumberingScope) (int64, error) {
	var max int64
	err := t.conn(ctx).Model(&models.Sale{}).
		Where("branch_id = ? AND numbering_scope = ?", branchId, scope).
		Select("COALESCE(MAX(receipt_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, translate(err)
	}
	return max, nil
}

func (t *gormTx) CreateSale(ctx context.Context, sale *models.Sale) error {
	if !t.inTx {
		return errors.New("CreateSale requires a transaction")
	}
	db := t.conn(ctx)
	// A savepoint keeps the surrounding transaction usable after a unique violation.
	if err := db.SavePoint(receiptSavePoint).Error; err != nil {
		return translate(err)
	}
	if err := db.Omit("Payments").Create(sale).Error; err != nil {
		if rbErr := db.RollbackTo(receiptSavePoint).Error; rbErr != nil {
			return translate(rbErr)
		}
		sale.ID = 0
		for i := range sale.Items {
			sale.Items[i].ID = 0
			sale.Items[i].SaleId = 0
		}
		if isDuplicateKeyErr(err) {
			return ErrDuplicateReceiptNumber
		}
		return translate(err)
	}
	return nil
}

func (t *gormTx) loadSaleLines(ctx context.Context, sale *models.Sale) error {
	if err := t.conn(ctx).Where("sale_id = ?", sale.ID).Order("id ASC").Find(&sale.Items).Error; err != nil {
		return translate(err)
	}
	if err := t.conn(ctx).Where("sale_id = ?", sale.ID).Order("id ASC").Find(&sale.Payments).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (t *gormTx) GetSale(ctx context.Context, id int) (*models.Sale, error) {
	sale, err := take[models.Sale](t.conn(ctx), "id = ?", id)
	if err != nil {
		return nil, err
	}
	if err := t.loadSaleLines(ctx, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

func (t *gormTx) LockSale(ctx context.Context, id int) (*models.Sale, error) {
	sale, err := take[models.Sale](t.forUpdate(ctx), "id = ?", id)
	if err != nil {
		return nil, err
	}
	if err := t.loadSaleLines(ctx, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

func (t *gormTx) UpdateSale(ctx context.Context, sale *models.Sale) error {
	return translate(t.conn(ctx).Omit(clause.Associations).Save(sale).Error)
}

func (t *gormTx) CreateSalePayment(ctx context.Context, payment *models.SalePayment) error {
	return create(t.conn(ctx), payment)
}

func (t *gormTx) ListUnauthorizedFiscalSales(ctx context.Context, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	err := t.conn(ctx).
		Joins("JOIN receipt_type_settings rts ON rts.branch_id = sales.branch_id AND rts.receipt_type = sales.receipt_type").
		Where("rts.is_fiscal = ?", true).
		Where("sales.status = ? AND sales.numbering_scope = ? AND sales.cae IS NULL", models.SaleStatusActive, models.NumberingScopeSale).
		Order("sales.id ASC").
		Limit(limit).
		Find(&sales).Error
	if err != nil {
		return nil, translate(err)
	}
	return sales, nil
}
