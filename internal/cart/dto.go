package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

// CartDTO is the API-facing cart shape with the cached pricing breakdown.
type CartDTO struct {
	ID         uuid.UUID       `json:"id"`
	Items      []CartItemDTO   `json:"items"`
	CouponCode *string         `json:"coupon_code,omitempty"`
	ItemsTotal decimal.Decimal `json:"items_total"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`

	// CouponDetached reports that the attached coupon stopped qualifying
	// during this mutation and was removed.
	CouponDetached bool   `json:"coupon_detached,omitempty"`
	DetachReason   string `json:"detach_reason,omitempty"`
}

// CartItemDTO mirrors a single cart line.
type CartItemDTO struct {
	ID             uuid.UUID             `json:"id"`
	ProductID      uuid.UUID             `json:"product_id"`
	ProductName    string                `json:"product_name"`
	DesignID       *uuid.UUID            `json:"design_id,omitempty"`
	DesignSnapshot *types.DesignSnapshot `json:"design_snapshot,omitempty"`
	UnitPrice      decimal.Decimal       `json:"unit_price"`
	Quantity       int                   `json:"quantity"`
	SelectedSize   string                `json:"selected_size"`
	SelectedColor  string                `json:"selected_color"`
}

func toDTO(cart *models.Cart) *CartDTO {
	dto := &CartDTO{
		ID:         cart.ID,
		Items:      make([]CartItemDTO, 0, len(cart.Items)),
		ItemsTotal: cart.ItemsTotal,
		Discount:   cart.Discount,
		Tax:        cart.Tax,
		Shipping:   cart.Shipping,
		Total:      cart.Total,
	}
	if cart.Coupon != nil {
		code := cart.Coupon.Code
		dto.CouponCode = &code
	}
	for _, item := range cart.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			DesignID:       item.DesignID,
			DesignSnapshot: item.DesignSnapshot,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			SelectedSize:   item.SelectedSize,
			SelectedColor:  item.SelectedColor,
		})
	}
	return dto
}
