package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id int64) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Payment, error) {
	query := db.WithContext(ctx)
	// sqlite has no row locks; the database is a single writer anyway.
	if db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item domain.Payment
	err := query.First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Save(payment).Error
}
