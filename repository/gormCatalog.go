package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/pos_backend/models"
)

func (t *gormTx) CreateBranch(ctx context.Context, branch *models.Branch) error {
	return create(t.conn(ctx), branch)
}

func (t *gormTx) GetBranch(ctx context.Context, id int) (*models.Branch, error) {
	return take[models.Branch](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) ListBranches(ctx context.Context, ids []int) ([]models.Branch, error) {
	var branches []models.Branch
	q := t.conn(ctx).Order("id ASC")
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if err := q.Find(&branches).Error; err != nil {
		return nil, translate(err)
	}
	return branches, nil
}

func (t *gormTx) LockBranch(ctx context.Context, id int) (*models.Branch, error) {
	return take[models.Branch](t.forUpdate(ctx), "id = ?", id)
}

func (t *gormTx) CreateReceiptTypeSetting(ctx context.Context, setting *models.ReceiptTypeSetting) error {
	return create(t.conn(ctx), setting)
}

func (t *gormTx) GetReceiptTypeSetting(ctx context.Context, branchId int, receiptType string) (*models.ReceiptTypeSetting, error) {
	return take[models.ReceiptTypeSetting](t.conn(ctx), "branch_id = ? AND receipt_type = ?", branchId, receiptType)
}

func (t *gormTx) CreateProduct(ctx context.Context, product *models.Product) error {
	return create(t.conn(ctx), product)
}

func (t *gormTx) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	var product models.Product
	if err := t.conn(ctx).Preload("Components").Where("id = ?", id).Take(&product).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (t *gormTx) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return create(t.conn(ctx), customer)
}

func (t *gormTx) GetCustomer(ctx context.Context, id int) (*models.Customer, error) {
	return take[models.Customer](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) CreateSupplier(ctx context.Context, supplier *models.Supplier) error {
	return create(t.conn(ctx), supplier)
}

func (t *gormTx) GetSupplier(ctx context.Context, id int) (*models.Supplier, error) {
	return take[models.Supplier](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) error {
	return create(t.conn(ctx), method)
}

func (t *gormTx) GetPaymentMethod(ctx context.Context, id int) (*models.PaymentMethod, error) {
	return take[models.PaymentMethod](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) GetPaymentMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error) {
	return take[models.PaymentMethod](t.conn(ctx), "code = ?", code)
}

func (t *gormTx) CreateMovementType(ctx context.Context, movementType *models.MovementType) error {
	return create(t.conn(ctx), movementType)
}

func (t *gormTx) GetMovementType(ctx context.Context, id int) (*models.MovementType, error) {
	return take[models.MovementType](t.conn(ctx), "id = ?", id)
}

func (t *gormTx) GetMovementTypeByCode(ctx context.Context, code string) (*models.MovementType, error) {
	return take[models.MovementType](t.conn(ctx), "code = ?", code)
}
