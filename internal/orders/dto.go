package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

// OrderDTO is the API-facing order shape.
type OrderDTO struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	CouponCode  *string           `json:"coupon_code,omitempty"`
	ItemsTotal  decimal.Decimal   `json:"items_total"`
	Discount    decimal.Decimal   `json:"discount"`
	Tax         decimal.Decimal   `json:"tax"`
	Shipping    decimal.Decimal   `json:"shipping"`
	Total       decimal.Decimal   `json:"total"`

	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	GatewayOrderID *string             `json:"gateway_order_id,omitempty"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`

	ShippingAddress  types.Address `json:"shipping_address"`
	ShippingProvider *string       `json:"shipping_provider,omitempty"`
	TrackingID       *string       `json:"tracking_id,omitempty"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`

	Items   []OrderItemDTO    `json:"items"`
	History []OrderHistoryDTO `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// OrderItemDTO mirrors a frozen order line.
type OrderItemDTO struct {
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

// OrderHistoryDTO mirrors one lifecycle transition.
type OrderHistoryDTO struct {
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Note       *string           `json:"note,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func toDTO(order *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		Status:           order.Status,
		CouponCode:       order.CouponCode,
		ItemsTotal:       order.ItemsTotal,
		Discount:         order.Discount,
		Tax:              order.Tax,
		Shipping:         order.Shipping,
		Total:            order.Total,
		PaymentMethod:    order.PaymentMethod,
		PaymentStatus:    order.PaymentStatus,
		GatewayOrderID:   order.GatewayOrderID,
		PaidAt:           order.PaidAt,
		ShippingAddress:  order.ShippingAddress,
		ShippingProvider: order.ShippingProvider,
		TrackingID:       order.TrackingID,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
		Items:            make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:        order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
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
	for _, entry := range order.History {
		dto.History = append(dto.History, OrderHistoryDTO{
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			Note:       entry.Note,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return dto
}
