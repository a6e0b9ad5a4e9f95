package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

// OrderItem is a frozen copy of a cart line at checkout, including the design
// snapshot so the order stays renderable after design edits.
type OrderItem struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string                `gorm:"column:product_name;not null"`
	DesignID       *uuid.UUID            `gorm:"column:design_id;type:uuid"`
	DesignSnapshot *types.DesignSnapshot `gorm:"column:design_snapshot;type:jsonb;serializer:json"`
	UnitPrice      decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity       int                   `gorm:"column:quantity;not null"`
	SelectedSize   string                `gorm:"column:selected_size;not null"`
	SelectedColor  string                `gorm:"column:selected_color;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}
