// Package inventory decrements per-size stock after a paid checkout.
package inventory

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/ninerx/paycore/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductSize is the stock row for one size of one product.
type ProductSize struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ProductID snowflake.ID `gorm:"not null;index"`
	Size      string       `gorm:"type:text;not null"`
	Stock     int64        `gorm:"not null;default:0"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProductSize) TableName() string { return "product_sizes" }

type Service interface {
	DecrementForOrder(ctx context.Context, order orderdomain.Order)
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) Service {
	return &service{
		db:  p.DB,
		log: p.Log.Named("inventory.service"),
	}
}

// DecrementForOrder runs one atomic guarded decrement per size line so
// concurrent orders on the same size cannot lose updates. Insufficient stock
// is logged and skipped; stock never goes negative and the payment is never
// rolled back for it.
func (s *service) DecrementForOrder(ctx context.Context, order orderdomain.Order) {
	for _, item := range order.Items {
		for _, size := range item.Sizes {
			if size.Quantity <= 0 {
				continue
			}
			result := s.db.WithContext(ctx).Exec(
				`UPDATE product_sizes
				 SET stock = stock - ?, updated_at = ?
				 WHERE id = ? AND stock >= ?`,
				size.Quantity,
				time.Now().UTC(),
				size.ProductSizeID,
				size.Quantity,
			)
			if result.Error != nil {
				s.log.Warn("stock decrement failed",
					zap.String("product_size_id", size.ProductSizeID.String()),
					zap.Int64("quantity", size.Quantity),
					zap.Error(result.Error),
				)
				continue
			}
			if result.RowsAffected == 0 {
				s.log.Warn("stock decrement skipped, insufficient stock",
					zap.String("product_size_id", size.ProductSizeID.String()),
					zap.Int64("quantity", size.Quantity),
				)
			}
		}
	}
}

var Module = fx.Module("inventory",
	fx.Provide(NewService),
)
