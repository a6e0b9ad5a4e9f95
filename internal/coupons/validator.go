package coupons

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
)

// Reason identifies why a coupon was rejected.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonExhausted    Reason = "exhausted"
	ReasonNotStarted   Reason = "not_started"
	ReasonExpired      Reason = "expired"
	ReasonBelowMinimum Reason = "below_minimum"
)

// Rejection explains a failed eligibility check.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("coupon rejected (%s): %s", r.Reason, r.Message)
}

// Validate runs the eligibility checks in a fixed order and short-circuits on
// the first failure: active, usage limit, validity window, minimum order
// amount. On success it returns the discount for the given items total,
// already clamped.
func Validate(coupon *models.Coupon, itemsTotal decimal.Decimal, now time.Time) (decimal.Decimal, *Rejection) {
	if coupon == nil || !coupon.Active {
		return decimal.Zero, &Rejection{
			Reason:  ReasonInactive,
			Message: "coupon does not exist or is inactive",
		}
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return decimal.Zero, &Rejection{
			Reason:  ReasonExhausted,
			Message: "coupon usage limit reached",
		}
	}
	if now.Before(coupon.ValidFrom) {
		return decimal.Zero, &Rejection{
			Reason:  ReasonNotStarted,
			Message: "coupon is not valid yet",
		}
	}
	if now.After(coupon.ValidUntil) {
		return decimal.Zero, &Rejection{
			Reason:  ReasonExpired,
			Message: "coupon has expired",
		}
	}
	if itemsTotal.LessThan(coupon.MinOrderAmount) {
		return decimal.Zero, &Rejection{
			Reason:  ReasonBelowMinimum,
			Message: fmt.Sprintf("order total below coupon minimum of %s", coupon.MinOrderAmount.StringFixed(2)),
		}
	}

	return Discount(coupon, itemsTotal), nil
}

// Discount computes the clamped discount for an eligible coupon.
// Percentage discounts are capped at the coupon's max discount when set; flat
// discounts never exceed the items total.
func Discount(coupon *models.Coupon, itemsTotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.Type {
	case enums.DiscountTypePercentage:
		discount = itemsTotal.Mul(coupon.Value).Div(decimal.NewFromInt(100)).Round(2)
		if coupon.MaxDiscount != nil && discount.GreaterThan(*coupon.MaxDiscount) {
			discount = *coupon.MaxDiscount
		}
	case enums.DiscountTypeFlat:
		discount = coupon.Value
	default:
		return decimal.Zero
	}

	if discount.GreaterThan(itemsTotal) {
		discount = itemsTotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount.Round(2)
}
