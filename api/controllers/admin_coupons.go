package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/api/responses"
	"github.com/teeprintlabs/teeprint-backend/api/validators"
	couponsvc "github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
	"github.com/teeprintlabs/teeprint-backend/pkg/logger"
)

type createCouponRequest struct {
	Code           string           `json:"code" validate:"required"`
	Type           string           `json:"type" validate:"required"`
	Value          decimal.Decimal  `json:"value" validate:"required"`
	MinOrderAmount decimal.Decimal  `json:"min_order_amount"`
	MaxDiscount    *decimal.Decimal `json:"max_discount"`
	UsageLimit     *int             `json:"usage_limit"`
	ValidFrom      time.Time        `json:"valid_from" validate:"required"`
	ValidUntil     time.Time        `json:"valid_until" validate:"required"`
	Active         *bool            `json:"active"`
}

// AdminCouponCreate registers a new coupon. Codes are stored uppercase.
func AdminCouponCreate(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		var payload createCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		discountType, err := enums.ParseDiscountType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount type"))
			return
		}

		active := true
		if payload.Active != nil {
			active = *payload.Active
		}

		coupon, err := svc.Create(r.Context(), couponsvc.CreateCouponInput{
			Code:           payload.Code,
			Type:           discountType,
			Value:          payload.Value,
			MinOrderAmount: payload.MinOrderAmount,
			MaxDiscount:    payload.MaxDiscount,
			UsageLimit:     payload.UsageLimit,
			ValidFrom:      payload.ValidFrom,
			ValidUntil:     payload.ValidUntil,
			Active:         active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCouponResponse(coupon))
	}
}

func AdminCouponList(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		coupons, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]couponResponse, 0, len(coupons))
		for i := range coupons {
			out = append(out, newCouponResponse(&coupons[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type couponResponse struct {
	ID             uuid.UUID        `json:"id"`
	Code           string           `json:"code"`
	Type           string           `json:"type"`
	Value          decimal.Decimal  `json:"value"`
	MinOrderAmount decimal.Decimal  `json:"min_order_amount"`
	MaxDiscount    *decimal.Decimal `json:"max_discount,omitempty"`
	UsageLimit     *int             `json:"usage_limit,omitempty"`
	UsageCount     int              `json:"usage_count"`
	ValidFrom      time.Time        `json:"valid_from"`
	ValidUntil     time.Time        `json:"valid_until"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func newCouponResponse(coupon *models.Coupon) couponResponse {
	return couponResponse{
		ID:             coupon.ID,
		Code:           coupon.Code,
		Type:           string(coupon.Type),
		Value:          coupon.Value,
		MinOrderAmount: coupon.MinOrderAmount,
		MaxDiscount:    coupon.MaxDiscount,
		UsageLimit:     coupon.UsageLimit,
		UsageCount:     coupon.UsageCount,
		ValidFrom:      coupon.ValidFrom,
		ValidUntil:     coupon.ValidUntil,
		Active:         coupon.Active,
		CreatedAt:      coupon.CreatedAt,
		UpdatedAt:      coupon.UpdatedAt,
	}
}
