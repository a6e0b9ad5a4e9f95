package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/teeprintlabs/teeprint-backend/internal/catalog"
	"github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/internal/designs"
	"github.com/teeprintlabs/teeprint-backend/internal/pricing"
	"github.com/teeprintlabs/teeprint-backend/pkg/config"
	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

// casRetries bounds how often a mutation is replayed after losing the
// version race to a concurrent request for the same cart.
const casRetries = 3

var errVersionConflict = errors.New("cart version conflict")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the per-user cart operations. Every mutation recomputes the
// pricing breakdown and persists it before returning.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartDTO, error)
	ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*CartDTO, error)
	RemoveCoupon(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
}

type service struct {
	repo     CartRepository
	coupons  coupons.CouponRepository
	tx       txRunner
	catalog  catalog.Service
	designs  designs.Service
	taxRate  decimal.Decimal
	shipping decimal.Decimal
	now      func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(
	repo CartRepository,
	couponRepo coupons.CouponRepository,
	tx txRunner,
	catalogSvc catalog.Service,
	designsSvc designs.Service,
	pricingCfg config.PricingConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if couponRepo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalogSvc == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if designsSvc == nil {
		return nil, fmt.Errorf("designs service required")
	}
	return &service{
		repo:     repo,
		coupons:  couponRepo,
		tx:       tx,
		catalog:  catalogSvc,
		designs:  designsSvc,
		taxRate:  pricingCfg.TaxRate(),
		shipping: pricingCfg.Shipping(),
		now:      time.Now,
	}, nil
}

// AddItemInput captures the payload for a new cart line.
type AddItemInput struct {
	ProductID     uuid.UUID
	DesignID      *uuid.UUID
	Quantity      int
	SelectedSize  string
	SelectedColor string
}

// GetCart returns the cart, creating an empty one on first access.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDTO(cart), nil
}

// AddItem freezes the catalog price and design snapshot, then merges the line
// into the cart.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	size := strings.TrimSpace(input.SelectedSize)
	color := strings.TrimSpace(input.SelectedColor)
	if size == "" || color == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size and color are required")
	}

	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	var snapshot *types.DesignSnapshot
	if input.DesignID != nil {
		design, err := s.designs.GetDesign(ctx, *input.DesignID, userID)
		if err != nil {
			return nil, err
		}
		snapshot = design
	}

	unitPrice := product.EffectivePrice().Round(2)

	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		for i := range cart.Items {
			if cart.Items[i].SameLine(input.ProductID, input.DesignID, size, color) {
				cart.Items[i].Quantity += input.Quantity
				return nil
			}
		}
		cart.Items = append(cart.Items, models.CartItem{
			ID:             uuid.New(),
			ProductID:      input.ProductID,
			ProductName:    product.Name,
			DesignID:       input.DesignID,
			DesignSnapshot: snapshot,
			UnitPrice:      unitPrice,
			Quantity:       input.Quantity,
			SelectedSize:   size,
			SelectedColor:  color,
		})
		return nil
	})
}

// UpdateItemQuantity replaces the quantity of an existing line.
func (s *service) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*CartDTO, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items[i].Quantity = quantity
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	})
}

// RemoveItem drops a line from the cart.
func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	})
}

// ApplyCoupon attaches a coupon after running the eligibility checks against
// the current items total. Rejections are surfaced with their typed reason.
func (s *service) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*CartDTO, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			coupon = nil
		} else {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
		}
	}

	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		itemsTotal := pricing.ItemsTotal(cart.Items)
		if _, rejection := coupons.Validate(coupon, itemsTotal, s.now()); rejection != nil {
			return pkgerrors.New(pkgerrors.CodeCouponRejected, rejection.Message).
				WithDetails(map[string]any{"reason": string(rejection.Reason)})
		}
		cart.CouponID = &coupon.ID
		cart.Coupon = coupon
		return nil
	})
}

// RemoveCoupon detaches the coupon, if any.
func (s *service) RemoveCoupon(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		cart.CouponID = nil
		cart.Coupon = nil
		return nil
	})
}

// Clear empties the cart and detaches the coupon.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, userID, func(cart *models.Cart) error {
		cart.Items = nil
		cart.CouponID = nil
		cart.Coupon = nil
		return nil
	})
}

// mutate loads the cart, applies the mutation, recomputes the totals and
// persists everything guarded by the cart version. Losing the version race
// replays the whole mutation against a fresh snapshot.
func (s *service) mutate(ctx context.Context, userID uuid.UUID, apply func(cart *models.Cart) error) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		cart, err := s.loadOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}

		if err := apply(cart); err != nil {
			return nil, err
		}

		shipping := s.shipping
		if len(cart.Items) == 0 {
			shipping = decimal.Zero
		}
		quote := pricing.Compute(cart.Items, cart.Coupon, s.taxRate, shipping, s.now())
		cart.ItemsTotal = quote.ItemsTotal
		cart.Discount = quote.Discount
		cart.Tax = quote.Tax
		cart.Shipping = quote.Shipping
		cart.Total = quote.Total
		if quote.CouponDetached {
			cart.CouponID = nil
			cart.Coupon = nil
		}

		expected := cart.Version
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.SaveVersioned(ctx, cart, expected)
			if err != nil {
				return err
			}
			if !ok {
				return errVersionConflict
			}
			return repo.ReplaceItems(ctx, cart.ID, cart.Items)
		})
		if err != nil {
			if errors.Is(err, errVersionConflict) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cart")
		}

		dto := toDTO(cart)
		if quote.CouponDetached {
			dto.CouponDetached = true
			dto.DetachReason = string(quote.DetachReason)
		}
		return dto, nil
	}

	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently, please retry")
}

func (s *service) loadOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	created, createErr := s.repo.Create(ctx, &models.Cart{UserID: userID})
	if createErr != nil {
		// another request created the cart first
		cart, retryErr := s.repo.FindByUser(ctx, userID)
		if retryErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, createErr, "create cart")
		}
		return cart, nil
	}
	return created, nil
}
