package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func validWindow(now time.Time) (time.Time, time.Time) {
	return now.Add(-time.Hour), now.Add(time.Hour)
}

func TestComputeReferenceScenario(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	from, until := validWindow(now)
	maxDiscount := dec("500")
	coupon := &models.Coupon{
		Type:        enums.DiscountTypePercentage,
		Value:       dec("30"),
		MaxDiscount: &maxDiscount,
		ValidFrom:   from,
		ValidUntil:  until,
		Active:      true,
	}
	items := []models.CartItem{{UnitPrice: dec("599"), Quantity: 2}}

	quote := Compute(items, coupon, dec("5"), dec("50"), now)

	if !quote.ItemsTotal.Equal(dec("1198")) {
		t.Fatalf("items total = %s, want 1198", quote.ItemsTotal)
	}
	if !quote.Discount.Equal(dec("359.40")) {
		t.Fatalf("discount = %s, want 359.40", quote.Discount)
	}
	if !quote.Tax.Equal(dec("41.93")) {
		t.Fatalf("tax = %s, want 41.93", quote.Tax)
	}
	if !quote.Total.Equal(dec("930.53")) {
		t.Fatalf("total = %s, want 930.53", quote.Total)
	}
	if quote.CouponDetached {
		t.Fatal("coupon should not be detached")
	}
}

func TestComputePercentageCappedAtMaxDiscount(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	from, until := validWindow(now)
	maxDiscount := dec("100")
	coupon := &models.Coupon{
		Type:        enums.DiscountTypePercentage,
		Value:       dec("50"),
		MaxDiscount: &maxDiscount,
		ValidFrom:   from,
		ValidUntil:  until,
		Active:      true,
	}
	items := []models.CartItem{{UnitPrice: dec("400"), Quantity: 1}}

	quote := Compute(items, coupon, decimal.Zero, decimal.Zero, now)

	if !quote.Discount.Equal(dec("100")) {
		t.Fatalf("discount = %s, want capped 100", quote.Discount)
	}
	if !quote.Total.Equal(dec("300")) {
		t.Fatalf("total = %s, want 300", quote.Total)
	}
}

func TestComputeFlatClampedToItemsTotal(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	from, until := validWindow(now)
	coupon := &models.Coupon{
		Type:       enums.DiscountTypeFlat,
		Value:      dec("500"),
		ValidFrom:  from,
		ValidUntil: until,
		Active:     true,
	}
	items := []models.CartItem{{UnitPrice: dec("120"), Quantity: 1}}

	quote := Compute(items, coupon, dec("5"), dec("50"), now)

	if !quote.Discount.Equal(dec("120")) {
		t.Fatalf("discount = %s, want clamped 120", quote.Discount)
	}
	// discounted base is zero, so only shipping remains
	if !quote.Tax.Equal(dec("0")) {
		t.Fatalf("tax = %s, want 0", quote.Tax)
	}
	if !quote.Total.Equal(dec("50")) {
		t.Fatalf("total = %s, want 50", quote.Total)
	}
}

func TestComputeDetachesFailingCoupon(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	from, until := validWindow(now)
	coupon := &models.Coupon{
		Type:           enums.DiscountTypePercentage,
		Value:          dec("10"),
		MinOrderAmount: dec("1000"),
		ValidFrom:      from,
		ValidUntil:     until,
		Active:         true,
	}
	items := []models.CartItem{{UnitPrice: dec("100"), Quantity: 1}}

	quote := Compute(items, coupon, dec("5"), dec("50"), now)

	if !quote.CouponDetached {
		t.Fatal("expected coupon to be detached")
	}
	if quote.DetachReason != coupons.ReasonBelowMinimum {
		t.Fatalf("detach reason = %s, want below_minimum", quote.DetachReason)
	}
	if !quote.Discount.IsZero() {
		t.Fatalf("discount = %s, want 0", quote.Discount)
	}
	if !quote.Total.Equal(dec("155")) {
		t.Fatalf("total = %s, want 155", quote.Total)
	}
}

func TestComputeEmptyCart(t *testing.T) {
	t.Parallel()

	quote := Compute(nil, nil, dec("5"), decimal.Zero, time.Now().UTC())

	if !quote.ItemsTotal.IsZero() || !quote.Total.IsZero() {
		t.Fatalf("empty cart quote = %+v, want all zero", quote)
	}
}
