package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/teeprintlabs/teeprint-backend/internal/catalog"
	"github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/pkg/config"
	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

// memCartRepo keeps one cart in memory and honors the version guard the same
// way the SQL repository does.
type memCartRepo struct {
	mu       sync.Mutex
	cart     *models.Cart
	saveHook func(repo *memCartRepo)
}

func (m *memCartRepo) WithTx(tx *gorm.DB) CartRepository { return m }

func (m *memCartRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil || m.cart.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return copyCart(m.cart), nil
}

func (m *memCartRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil || m.cart.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return copyCart(m.cart), nil
}

func (m *memCartRepo) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	cart.Version = 1
	m.cart = copyCart(cart)
	return copyCart(cart), nil
}

func (m *memCartRepo) SaveVersioned(ctx context.Context, cart *models.Cart, expectedVersion int64) (bool, error) {
	if m.saveHook != nil {
		hook := m.saveHook
		m.saveHook = nil
		hook(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil || m.cart.Version != expectedVersion {
		return false, nil
	}
	stored := copyCart(cart)
	stored.Version = expectedVersion + 1
	stored.Items = m.cart.Items
	m.cart = stored
	return true, nil
}

func (m *memCartRepo) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart.Items = append([]models.CartItem(nil), items...)
	return nil
}

func (m *memCartRepo) Empty(ctx context.Context, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart.Items = nil
	m.cart.CouponID = nil
	m.cart.Coupon = nil
	m.cart.Version++
	return nil
}

func copyCart(cart *models.Cart) *models.Cart {
	dup := *cart
	dup.Items = append([]models.CartItem(nil), cart.Items...)
	return &dup
}

type stubCouponRepo struct {
	coupon *models.Coupon
}

func (s *stubCouponRepo) WithTx(tx *gorm.DB) coupons.CouponRepository { return s }
func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	if s.coupon == nil || coupons.NormalizeCode(code) != s.coupon.Code {
		return nil, gorm.ErrRecordNotFound
	}
	return s.coupon, nil
}
func (s *stubCouponRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	if s.coupon == nil || s.coupon.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.coupon, nil
}
func (s *stubCouponRepo) Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	return coupon, nil
}
func (s *stubCouponRepo) List(ctx context.Context) ([]models.Coupon, error) { return nil, nil }
func (s *stubCouponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	return true, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubCatalog struct {
	products map[uuid.UUID]catalog.Product
}

func (s stubCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	product, ok := s.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &product, nil
}

type stubDesigns struct{}

func (stubDesigns) GetDesign(ctx context.Context, id, ownerID uuid.UUID) (*types.DesignSnapshot, error) {
	return &types.DesignSnapshot{DesignID: id.String(), PreviewURL: "https://cdn.test/preview.png"}, nil
}

func testPricing() config.PricingConfig {
	return config.PricingConfig{TaxRatePercent: "5", ShippingCharge: "50"}
}

func newTestService(t *testing.T, repo *memCartRepo, couponRepo *stubCouponRepo, cat stubCatalog) Service {
	t.Helper()
	svc, err := NewService(repo, couponRepo, stubTxRunner{}, cat, stubDesigns{}, testPricing())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testProduct(price string) catalog.Product {
	return catalog.Product{ID: uuid.New(), Name: "Classic Tee", BasePrice: dec(price), Active: true}
}

func TestAddItemFreezesPriceAndMergesLines(t *testing.T) {
	t.Parallel()

	product := testProduct("599")
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	input := AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "L", SelectedColor: "black"}
	if _, err := svc.AddItem(context.Background(), userID, input); err != nil {
		t.Fatalf("first add: %v", err)
	}
	dto, err := svc.AddItem(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(dto.Items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(dto.Items))
	}
	if dto.Items[0].Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", dto.Items[0].Quantity)
	}
	if !dto.Items[0].UnitPrice.Equal(dec("599")) {
		t.Fatalf("unit price = %s, want frozen 599", dto.Items[0].UnitPrice)
	}
	if !dto.ItemsTotal.Equal(dec("1198")) {
		t.Fatalf("items total = %s, want 1198", dto.ItemsTotal)
	}
	// 5% tax on 1198 plus 50 shipping
	if !dto.Total.Equal(dec("1307.90")) {
		t.Fatalf("total = %s, want 1307.90", dto.Total)
	}
}

func TestAddItemDistinctVariantsStaySeparate(t *testing.T) {
	t.Parallel()

	product := testProduct("250")
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "white"}); err != nil {
		t.Fatalf("add M: %v", err)
	}
	dto, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "L", SelectedColor: "white"})
	if err != nil {
		t.Fatalf("add L: %v", err)
	}
	if len(dto.Items) != 2 {
		t.Fatalf("expected two lines, got %d", len(dto.Items))
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	product := testProduct("100")
	product.Active = false
	svc := newTestService(t, &memCartRepo{}, &stubCouponRepo{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateItemQuantityUnknownLine(t *testing.T) {
	t.Parallel()

	product := testProduct("100")
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := svc.UpdateItemQuantity(context.Background(), userID, uuid.New(), 3)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyCouponBelowMinimum(t *testing.T) {
	t.Parallel()

	product := testProduct("100")
	now := time.Now().UTC()
	coupon := &models.Coupon{
		ID:             uuid.New(),
		Code:           "SAVE10",
		Type:           enums.DiscountTypePercentage,
		Value:          dec("10"),
		MinOrderAmount: dec("500"),
		ValidFrom:      now.Add(-time.Hour),
		ValidUntil:     now.Add(time.Hour),
		Active:         true,
	}
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{coupon: coupon}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := svc.ApplyCoupon(context.Background(), userID, "save10")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCouponRejected {
		t.Fatalf("expected coupon rejection, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["reason"] != string(coupons.ReasonBelowMinimum) {
		t.Fatalf("unexpected rejection details: %+v", typed.Details())
	}
}

func TestApplyCouponUnknownCode(t *testing.T) {
	t.Parallel()

	product := testProduct("100")
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := svc.ApplyCoupon(context.Background(), userID, "NOPE")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCouponRejected {
		t.Fatalf("expected coupon rejection, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["reason"] != string(coupons.ReasonInactive) {
		t.Fatalf("unexpected rejection details: %+v", typed.Details())
	}
}

func TestMutationDetachesStaleCoupon(t *testing.T) {
	t.Parallel()

	product := testProduct("300")
	now := time.Now().UTC()
	coupon := &models.Coupon{
		ID:             uuid.New(),
		Code:           "BULK",
		Type:           enums.DiscountTypePercentage,
		Value:          dec("10"),
		MinOrderAmount: dec("500"),
		ValidFrom:      now.Add(-time.Hour),
		ValidUntil:     now.Add(time.Hour),
		Active:         true,
	}
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{coupon: coupon}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	dto, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 2, SelectedSize: "M", SelectedColor: "red"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.ApplyCoupon(context.Background(), userID, "BULK"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}

	// dropping to one unit pushes the total below the coupon minimum
	dto, err = svc.UpdateItemQuantity(context.Background(), userID, dto.Items[0].ID, 1)
	if err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if !dto.CouponDetached {
		t.Fatal("expected the coupon to be detached")
	}
	if dto.DetachReason != string(coupons.ReasonBelowMinimum) {
		t.Fatalf("detach reason = %q, want below_minimum", dto.DetachReason)
	}
	if dto.CouponCode != nil {
		t.Fatalf("coupon code should be cleared, got %q", *dto.CouponCode)
	}
	if !dto.Discount.IsZero() {
		t.Fatalf("discount = %s, want 0", dto.Discount)
	}
}

func TestMutateRetriesAfterVersionConflict(t *testing.T) {
	t.Parallel()

	productA := testProduct("100")
	productB := testProduct("200")
	catalogStub := stubCatalog{products: map[uuid.UUID]catalog.Product{productA.ID: productA, productB.ID: productB}}
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{}, catalogStub)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: productA.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"}); err != nil {
		t.Fatalf("seed add: %v", err)
	}

	// simulate a concurrent request winning the version race once
	repo.saveHook = func(m *memCartRepo) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cart.Items = append(m.cart.Items, models.CartItem{
			ID:          uuid.New(),
			CartID:      m.cart.ID,
			ProductID:   productB.ID,
			ProductName: productB.Name,
			UnitPrice:   dec("200"),
			Quantity:    1, SelectedSize: "L", SelectedColor: "blue",
		})
		m.cart.Version++
	}

	dto, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: productA.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"})
	if err != nil {
		t.Fatalf("conflicted add: %v", err)
	}

	if len(dto.Items) != 2 {
		t.Fatalf("expected both interleaved lines, got %d", len(dto.Items))
	}
	// 100*2 from the merged line plus the concurrent 200 line
	if !dto.ItemsTotal.Equal(dec("400")) {
		t.Fatalf("items total = %s, want 400", dto.ItemsTotal)
	}
}

func TestMutateGivesUpAfterRepeatedConflicts(t *testing.T) {
	t.Parallel()

	product := testProduct("100")
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"}); err != nil {
		t.Fatalf("seed add: %v", err)
	}

	// every save loses the race
	conflicting := &alwaysConflictRepo{inner: repo}
	svcConflict, err := NewService(conflicting, &stubCouponRepo{}, stubTxRunner{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}}, stubDesigns{}, testPricing())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svcConflict.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict after retries, got %v", err)
	}
}

type alwaysConflictRepo struct {
	inner *memCartRepo
}

func (a *alwaysConflictRepo) WithTx(tx *gorm.DB) CartRepository { return a }
func (a *alwaysConflictRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return a.inner.FindByUser(ctx, userID)
}
func (a *alwaysConflictRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	return a.inner.FindByID(ctx, id)
}
func (a *alwaysConflictRepo) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	return a.inner.Create(ctx, cart)
}
func (a *alwaysConflictRepo) SaveVersioned(ctx context.Context, cart *models.Cart, expectedVersion int64) (bool, error) {
	return false, nil
}
func (a *alwaysConflictRepo) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	return nil
}
func (a *alwaysConflictRepo) Empty(ctx context.Context, cartID uuid.UUID) error {
	return nil
}

func TestClearZeroesTotalsAndShipping(t *testing.T) {
	t.Parallel()

	product := testProduct("100")
	repo := &memCartRepo{}
	svc := newTestService(t, repo, &stubCouponRepo{}, stubCatalog{products: map[uuid.UUID]catalog.Product{product.ID: product}})
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), userID, AddItemInput{ProductID: product.ID, Quantity: 1, SelectedSize: "M", SelectedColor: "red"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	dto, err := svc.Clear(context.Background(), userID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(dto.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(dto.Items))
	}
	if !dto.Shipping.IsZero() || !dto.Total.IsZero() {
		t.Fatalf("empty cart should have zero shipping and total, got %s / %s", dto.Shipping, dto.Total)
	}
}
