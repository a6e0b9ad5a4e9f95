package notifications

import (
	"context"
	"fmt"

	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/logger"
)

// Notifier delivers customer-facing order events. Delivery is best effort;
// callers never block on it and failures are only logged.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *models.Order)
	OrderStatusUpdated(ctx context.Context, order *models.Order)
}

type logNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier returns a notifier that records events in the structured log.
// Stands in for the delivery transport, which lives outside this service.
func NewLogNotifier(logg *logger.Logger) (Notifier, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &logNotifier{logg: logg}, nil
}

func (n *logNotifier) OrderConfirmed(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"event":        "order_confirmed",
	})
	n.logg.Info(ctx, "dispatching order confirmation notification")
}

func (n *logNotifier) OrderStatusUpdated(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"event":        "order_status_updated",
	})
	n.logg.Info(ctx, "dispatching order status notification")
}
