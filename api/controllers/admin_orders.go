package controllers

import (
	"net/http"

	"github.com/teeprintlabs/teeprint-backend/api/responses"
	"github.com/teeprintlabs/teeprint-backend/api/validators"
	ordersvc "github.com/teeprintlabs/teeprint-backend/internal/orders"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
	"github.com/teeprintlabs/teeprint-backend/pkg/logger"
)

type updateOrderStatusRequest struct {
	OrderStatus      string  `json:"order_status" validate:"required"`
	TrackingID       *string `json:"tracking_id"`
	ShippingProvider *string `json:"shipping_provider"`
}

// AdminUpdateOrderStatus moves an order along the fulfilment lifecycle.
// Tracking details are only persisted when the order enters shipped.
func AdminUpdateOrderStatus(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parsePathID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(payload.OrderStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), orderID, ordersvc.UpdateStatusInput{
			Status:           status,
			TrackingID:       payload.TrackingID,
			ShippingProvider: payload.ShippingProvider,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}
