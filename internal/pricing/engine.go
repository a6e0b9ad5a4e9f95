package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
)

// Quote is a fully derived pricing breakdown. All figures are rounded to two
// decimal places and the total never goes below tax plus shipping.
type Quote struct {
	ItemsTotal decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	Total      decimal.Decimal

	// CouponDetached is set when a previously attached coupon failed
	// revalidation during this pass. Callers decide whether to surface it.
	CouponDetached bool
	DetachReason   coupons.Reason
}

// Compute derives the cart totals from scratch. The attached coupon, if any,
// is revalidated against the current items total; a coupon that no longer
// qualifies contributes no discount and the quote is tagged with the reason.
func Compute(items []models.CartItem, coupon *models.Coupon, taxRate, shipping decimal.Decimal, now time.Time) Quote {
	itemsTotal := decimal.Zero
	for _, item := range items {
		itemsTotal = itemsTotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	itemsTotal = itemsTotal.Round(2)

	quote := Quote{
		ItemsTotal: itemsTotal,
		Discount:   decimal.Zero,
		Shipping:   shipping.Round(2),
	}

	if coupon != nil {
		discount, rejection := coupons.Validate(coupon, itemsTotal, now)
		if rejection != nil {
			quote.CouponDetached = true
			quote.DetachReason = rejection.Reason
		} else {
			quote.Discount = discount
		}
	}

	discounted := itemsTotal.Sub(quote.Discount)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	quote.Tax = discounted.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)
	quote.Total = discounted.Add(quote.Tax).Add(quote.Shipping).Round(2)

	return quote
}

// ItemsTotal sums the line totals without touching discounts or tax.
func ItemsTotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}
