package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists the ledger in MySQL through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, inTx: true})
	})
	return translate(err)
}

func (s *GormStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&gormTx{db: s.db.WithContext(ctx)})
}

type gormTx struct {
	db   *gorm.DB
	inTx bool
}

func (t *gormTx) conn(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *gormTx) forUpdate(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func take[T any](db *gorm.DB, query interface{}, args ...interface{}) (*T, error) {
	var result T
	if err := db.Where(query, args...).Take(&result).Error; err != nil {
		return nil, translate(err)
	}
	return &result, nil
}

func create(db *gorm.DB, value interface{}) error {
	return translate(db.Create(value).Error)
}
