package repository

import (
	"context"

	"github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() Repository {
	return &repo{}
}

type Repository interface {
	ListActive(ctx context.Context, db *gorm.DB) ([]domain.Record, error)
	Upsert(ctx context.Context, db *gorm.DB, record *domain.Record) error
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Record, error) {
	var items []domain.Record
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("backend").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "backend"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "is_active", "updated_at"}),
	}).Create(record).Error
}
