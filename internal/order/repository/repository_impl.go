package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/payflow/internal/order/domain"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id int64) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paymentdomain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}
