package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

// Order is an immutable snapshot taken from the cart at checkout. Pricing
// figures are copied verbatim and never recomputed afterwards.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string            `gorm:"column:order_number;not null;uniqueIndex"`
	UserID      uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	CouponID    *uuid.UUID        `gorm:"column:coupon_id;type:uuid"`
	CouponCode  *string           `gorm:"column:coupon_code"`
	Status      enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	ItemsTotal  decimal.Decimal   `gorm:"column:items_total;type:numeric(12,2);not null"`
	Discount    decimal.Decimal   `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Tax         decimal.Decimal   `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	Shipping    decimal.Decimal   `gorm:"column:shipping;type:numeric(12,2);not null;default:0"`
	Total       decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`

	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	GatewayOrderID   *string             `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id;uniqueIndex"`
	GatewaySignature *string             `gorm:"column:gateway_signature"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`

	ShippingAddress  types.Address `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShippingProvider *string       `gorm:"column:shipping_provider"`
	TrackingID       *string       `gorm:"column:tracking_id"`
	DeliveredAt      *time.Time    `gorm:"column:delivered_at"`
	CancelledAt      *time.Time    `gorm:"column:cancelled_at"`

	Items   []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
