package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the purchase a payment settles. Orders are created by the
// storefront; this system only reads them.
type Order struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(20,4);not null"`
	Currency    string          `json:"currency" gorm:"type:varchar(3);not null"`
	Description string          `json:"description" gorm:"type:varchar(128)"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id int64) (*Order, error)
	Create(ctx context.Context, db *gorm.DB, order *Order) error
}
