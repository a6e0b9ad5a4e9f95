package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
)

// Coupon is a storewide discount code. Code is stored normalized upper-case.
type Coupon struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code           string             `gorm:"column:code;not null;uniqueIndex"`
	Type           enums.DiscountType `gorm:"column:type;not null"`
	Value          decimal.Decimal    `gorm:"column:value;type:numeric(12,2);not null"`
	MinOrderAmount decimal.Decimal    `gorm:"column:min_order_amount;type:numeric(12,2);not null;default:0"`
	MaxDiscount    *decimal.Decimal   `gorm:"column:max_discount;type:numeric(12,2)"`
	UsageLimit     *int               `gorm:"column:usage_limit"`
	UsageCount     int                `gorm:"column:usage_count;not null;default:0"`
	ValidFrom      time.Time          `gorm:"column:valid_from;not null"`
	ValidUntil     time.Time          `gorm:"column:valid_until;not null"`
	Active         bool               `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
