package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
)

// OrderStatusHistory records one lifecycle transition. A row is appended for
// every transition without exception.
type OrderStatusHistory struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;not null"`
	ToStatus   enums.OrderStatus `gorm:"column:to_status;not null"`
	Note       *string           `gorm:"column:note"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}
