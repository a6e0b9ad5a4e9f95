package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

// CartItem is one line in a cart. UnitPrice is frozen from the catalog at add
// time and never refreshed by later catalog changes.
type CartItem struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	CartID         uuid.UUID             `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID      uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string                `gorm:"column:product_name;not null"`
	DesignID       *uuid.UUID            `gorm:"column:design_id;type:uuid"`
	DesignSnapshot *types.DesignSnapshot `gorm:"column:design_snapshot;type:jsonb;serializer:json"`
	UnitPrice      decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity       int                   `gorm:"column:quantity;not null"`
	SelectedSize   string                `gorm:"column:selected_size;not null"`
	SelectedColor  string                `gorm:"column:selected_color;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// SameLine reports whether another add merges into this line instead of
// creating a new one.
func (i CartItem) SameLine(productID uuid.UUID, designID *uuid.UUID, size, color string) bool {
	if i.ProductID != productID || i.SelectedSize != size || i.SelectedColor != color {
		return false
	}
	if (i.DesignID == nil) != (designID == nil) {
		return false
	}
	if i.DesignID != nil && *i.DesignID != *designID {
		return false
	}
	return true
}
