package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the single mutable cart owned by a user. Totals are cached from the
// last pricing pass so reads never recompute. Version backs the optimistic
// concurrency check on every mutation.
type Cart struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	CouponID   *uuid.UUID      `gorm:"column:coupon_id;type:uuid"`
	Coupon     *Coupon         `gorm:"foreignKey:CouponID"`
	Version    int64           `gorm:"column:version;not null;default:1"`
	ItemsTotal decimal.Decimal `gorm:"column:items_total;type:numeric(12,2);not null;default:0"`
	Discount   decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Tax        decimal.Decimal `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	Shipping   decimal.Decimal `gorm:"column:shipping;type:numeric(12,2);not null;default:0"`
	Total      decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	Items      []CartItem      `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
