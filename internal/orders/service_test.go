package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	cartpkg "github.com/teeprintlabs/teeprint-backend/internal/cart"
	"github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
	"github.com/teeprintlabs/teeprint-backend/pkg/gateway"
	"github.com/teeprintlabs/teeprint-backend/pkg/logger"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

type memOrderRepo struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*models.Order
	history     []models.OrderStatusHistory
	createErrs  []error
	seenNumbers []string
	deleted     []uuid.UUID
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[uuid.UUID]*models.Order{}}
}

func (m *memOrderRepo) WithTx(tx *gorm.DB) OrderRepository { return m }

func (m *memOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seenNumbers = append(m.seenNumbers, order.OrderNumber)
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	dup := *order
	m.orders[order.ID] = &dup
	return order, nil
}

func (m *memOrderRepo) Save(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *order
	m.orders[order.ID] = &dup
	return nil
}

func (m *memOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	dup := *order
	return &dup, nil
}

func (m *memOrderRepo) FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	order, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (m *memOrderRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.GatewayOrderID != nil && *order.GatewayOrderID == gatewayOrderID {
			dup := *order
			return &dup, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (m *memOrderRepo) ExistsByGatewayPaymentID(ctx context.Context, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.GatewayPaymentID != nil && *order.GatewayPaymentID == paymentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memOrderRepo) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *entry)
	return nil
}

func (m *memOrderRepo) historyFor(orderID uuid.UUID) []models.OrderStatusHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderStatusHistory
	for _, entry := range m.history {
		if entry.OrderID == orderID {
			out = append(out, entry)
		}
	}
	return out
}

type stubCartRepo struct {
	cart    *models.Cart
	emptied bool
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) cartpkg.CartRepository { return s }
func (s *stubCartRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if s.cart == nil || s.cart.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.cart, nil
}
func (s *stubCartRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubCartRepo) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	return cart, nil
}
func (s *stubCartRepo) SaveVersioned(ctx context.Context, cart *models.Cart, expectedVersion int64) (bool, error) {
	return true, nil
}
func (s *stubCartRepo) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	return nil
}
func (s *stubCartRepo) Empty(ctx context.Context, cartID uuid.UUID) error {
	s.emptied = true
	return nil
}

type stubCouponRepo struct {
	incrementOK    bool
	incrementCalls int
}

func (s *stubCouponRepo) WithTx(tx *gorm.DB) coupons.CouponRepository { return s }
func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubCouponRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubCouponRepo) Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	return coupon, nil
}
func (s *stubCouponRepo) List(ctx context.Context) ([]models.Coupon, error) { return nil, nil }
func (s *stubCouponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	s.incrementCalls++
	return s.incrementOK, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubGateway struct {
	intent      *gateway.Intent
	intentErr   error
	verifyValid bool
}

func (s *stubGateway) CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	if s.intentErr != nil {
		return nil, s.intentErr
	}
	return s.intent, nil
}

func (s *stubGateway) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	return s.verifyValid
}

type noopNotifier struct{}

func (noopNotifier) OrderConfirmed(ctx context.Context, order *models.Order)     {}
func (noopNotifier) OrderStatusUpdated(ctx context.Context, order *models.Order) {}

type fixture struct {
	svc     Service
	repo    *memOrderRepo
	carts   *stubCartRepo
	coupons *stubCouponRepo
	gateway *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemOrderRepo(),
		carts:   &stubCartRepo{},
		coupons: &stubCouponRepo{incrementOK: true},
		gateway: &stubGateway{verifyValid: true, intent: &gateway.Intent{GatewayOrderID: "gw_order_1"}},
	}
	svc, err := NewService(
		f.repo,
		f.carts,
		f.coupons,
		stubTxRunner{},
		f.gateway,
		noopNotifier{},
		nil,
		logger.New(logger.Options{ServiceName: "test"}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func seedCart(f *fixture, userID uuid.UUID, withCoupon bool) *models.Cart {
	cart := &models.Cart{
		ID:         uuid.New(),
		UserID:     userID,
		Version:    1,
		ItemsTotal: dec("1198"),
		Discount:   dec("359.40"),
		Tax:        dec("41.93"),
		Shipping:   dec("50"),
		Total:      dec("930.53"),
		Items: []models.CartItem{{
			ID:            uuid.New(),
			ProductID:     uuid.New(),
			ProductName:   "Classic Tee",
			UnitPrice:     dec("599"),
			Quantity:      2,
			SelectedSize:  "L",
			SelectedColor: "black",
		}},
	}
	if withCoupon {
		couponID := uuid.New()
		cart.CouponID = &couponID
		cart.Coupon = &models.Coupon{ID: couponID, Code: "SAVE30"}
	}
	f.carts.cart = cart
	return cart
}

func validAddress() types.Address {
	return types.Address{
		Name:       "Dana Smith",
		Phone:      "5551234567",
		Line1:      "42 Print Lane",
		City:       "Austin",
		State:      "TX",
		PostalCode: "78701",
		Country:    "US",
	}
}

func TestCheckoutCODConfirmsAndConsumesCoupon(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	seedCart(f, userID, true)

	dto, err := f.svc.Checkout(context.Background(), userID, CheckoutInput{
		ShippingAddress: validAddress(),
		PaymentMethod:   enums.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if dto.Status != enums.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", dto.Status)
	}
	if dto.CouponCode == nil || *dto.CouponCode != "SAVE30" {
		t.Fatalf("coupon code not snapshotted: %+v", dto.CouponCode)
	}
	if !dto.Total.Equal(dec("930.53")) {
		t.Fatalf("total = %s, want 930.53", dto.Total)
	}
	if f.coupons.incrementCalls != 1 {
		t.Fatalf("coupon incremented %d times, want 1", f.coupons.incrementCalls)
	}
	if !f.carts.emptied {
		t.Fatal("cart should be emptied")
	}

	history := f.repo.historyFor(dto.ID)
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].FromStatus != enums.OrderStatusPending || history[0].ToStatus != enums.OrderStatusConfirmed {
		t.Fatalf("unexpected history row: %+v", history[0])
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), uuid.New(), CheckoutInput{
		ShippingAddress: validAddress(),
		PaymentMethod:   enums.PaymentMethodCOD,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutIncompleteAddress(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	seedCart(f, userID, false)

	address := validAddress()
	address.Phone = ""
	_, err := f.svc.Checkout(context.Background(), userID, CheckoutInput{
		ShippingAddress: address,
		PaymentMethod:   enums.PaymentMethodCOD,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutCODExhaustedCouponFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.coupons.incrementOK = false
	userID := uuid.New()
	seedCart(f, userID, true)

	_, err := f.svc.Checkout(context.Background(), userID, CheckoutInput{
		ShippingAddress: validAddress(),
		PaymentMethod:   enums.PaymentMethodCOD,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCouponRejected {
		t.Fatalf("expected coupon rejection, got %v", err)
	}
}

func TestCheckoutGatewayLeavesOrderPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	seedCart(f, userID, true)

	dto, err := f.svc.Checkout(context.Background(), userID, CheckoutInput{
		ShippingAddress: validAddress(),
		PaymentMethod:   enums.PaymentMethodGateway,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if dto.Status != enums.OrderStatusPending {
		t.Fatalf("status = %s, want pending", dto.Status)
	}
	if dto.GatewayOrderID == nil || *dto.GatewayOrderID != "gw_order_1" {
		t.Fatalf("gateway order id not persisted: %+v", dto.GatewayOrderID)
	}
	// coupon usage is only consumed once payment settles
	if f.coupons.incrementCalls != 0 {
		t.Fatalf("coupon incremented %d times, want 0", f.coupons.incrementCalls)
	}
	if !f.carts.emptied {
		t.Fatal("cart should be emptied")
	}
}

func TestCheckoutGatewayFailureCompensates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.intentErr = errors.New("gateway timeout")
	userID := uuid.New()
	seedCart(f, userID, false)

	_, err := f.svc.Checkout(context.Background(), userID, CheckoutInput{
		ShippingAddress: validAddress(),
		PaymentMethod:   enums.PaymentMethodGateway,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(f.repo.deleted) != 1 {
		t.Fatalf("expected one compensating delete, got %d", len(f.repo.deleted))
	}
	if f.carts.emptied {
		t.Fatal("cart must stay intact when the gateway call fails")
	}
}

func TestCheckoutRetriesOrderNumberCollision(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.repo.createErrs = []error{fmt.Errorf("duplicate key value violates unique constraint \"idx_orders_order_number\"")}
	userID := uuid.New()
	seedCart(f, userID, false)

	dto, err := f.svc.Checkout(context.Background(), userID, CheckoutInput{
		ShippingAddress: validAddress(),
		PaymentMethod:   enums.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if len(f.repo.seenNumbers) != 2 {
		t.Fatalf("create attempts = %d, want 2", len(f.repo.seenNumbers))
	}
	if dto.OrderNumber == "" {
		t.Fatal("order number missing")
	}
}

func seedGatewayOrder(f *fixture, userID uuid.UUID, status enums.OrderStatus, paymentStatus enums.PaymentStatus) *models.Order {
	gatewayOrderID := "gw_order_1"
	couponID := uuid.New()
	order := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    "TP26090001",
		UserID:         userID,
		CouponID:       &couponID,
		Status:         status,
		Total:          dec("930.53"),
		PaymentMethod:  enums.PaymentMethodGateway,
		PaymentStatus:  paymentStatus,
		GatewayOrderID: &gatewayOrderID,
	}
	f.repo.orders[order.ID] = order
	return order
}

func TestVerifyPaymentSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	seedGatewayOrder(f, userID, enums.OrderStatusPending, enums.PaymentStatusPending)

	dto, err := f.svc.VerifyPayment(context.Background(), userID, VerifyPaymentInput{
		GatewayOrderID: "gw_order_1",
		PaymentID:      "pay_123",
		Signature:      "sig",
	})
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}

	if dto.Status != enums.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", dto.Status)
	}
	if dto.PaymentStatus != enums.PaymentStatusCompleted {
		t.Fatalf("payment status = %s, want completed", dto.PaymentStatus)
	}
	if dto.PaidAt == nil {
		t.Fatal("paid_at not stamped")
	}
	if f.coupons.incrementCalls != 1 {
		t.Fatalf("coupon incremented %d times, want 1", f.coupons.incrementCalls)
	}
	history := f.repo.historyFor(dto.ID)
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
}

func TestVerifyPaymentBadSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.verifyValid = false
	userID := uuid.New()
	order := seedGatewayOrder(f, userID, enums.OrderStatusPending, enums.PaymentStatusPending)

	_, err := f.svc.VerifyPayment(context.Background(), userID, VerifyPaymentInput{
		GatewayOrderID: "gw_order_1",
		PaymentID:      "pay_123",
		Signature:      "tampered",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeSignatureMismatch {
		t.Fatalf("expected signature mismatch, got %v", err)
	}

	stored, _ := f.repo.FindByID(context.Background(), order.ID)
	if stored.PaymentStatus != enums.PaymentStatusPending || stored.Status != enums.OrderStatusPending {
		t.Fatalf("order mutated on bad signature: %+v", stored)
	}
	if f.coupons.incrementCalls != 0 {
		t.Fatalf("coupon incremented %d times, want 0", f.coupons.incrementCalls)
	}
}

func TestVerifyPaymentDuplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	order := seedGatewayOrder(f, userID, enums.OrderStatusConfirmed, enums.PaymentStatusCompleted)
	paymentID := "pay_123"
	order.GatewayPaymentID = &paymentID

	_, err := f.svc.VerifyPayment(context.Background(), userID, VerifyPaymentInput{
		GatewayOrderID: "gw_order_1",
		PaymentID:      "pay_123",
		Signature:      "sig",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.coupons.incrementCalls != 0 {
		t.Fatalf("coupon incremented %d times, want 0", f.coupons.incrementCalls)
	}
}

func TestVerifyPaymentForeignOrderHidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seedGatewayOrder(f, uuid.New(), enums.OrderStatusPending, enums.PaymentStatusPending)

	_, err := f.svc.VerifyPayment(context.Background(), uuid.New(), VerifyPaymentInput{
		GatewayOrderID: "gw_order_1",
		PaymentID:      "pay_123",
		Signature:      "sig",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	order := seedGatewayOrder(f, userID, enums.OrderStatusConfirmed, enums.PaymentStatusPending)

	dto, err := f.svc.CancelOrder(context.Background(), userID, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != enums.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", dto.Status)
	}
	if dto.CancelledAt == nil {
		t.Fatal("cancelled_at not stamped")
	}
	if len(f.repo.historyFor(order.ID)) != 1 {
		t.Fatal("cancel must append exactly one history row")
	}
}

func TestCancelOrderAfterShipping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	order := seedGatewayOrder(f, userID, enums.OrderStatusShipped, enums.PaymentStatusCompleted)

	_, err := f.svc.CancelOrder(context.Background(), userID, order.ID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(f.repo.historyFor(order.ID)) != 0 {
		t.Fatal("denied cancel must not append history")
	}
}

func TestUpdateStatusShippedAttachesTracking(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := seedGatewayOrder(f, uuid.New(), enums.OrderStatusProcessing, enums.PaymentStatusCompleted)
	tracking := "TRK123"
	provider := "bluedart"

	dto, err := f.svc.UpdateStatus(context.Background(), order.ID, UpdateStatusInput{
		Status:           enums.OrderStatusShipped,
		TrackingID:       &tracking,
		ShippingProvider: &provider,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if dto.TrackingID == nil || *dto.TrackingID != tracking {
		t.Fatalf("tracking id not attached: %+v", dto.TrackingID)
	}
	if dto.ShippingProvider == nil || *dto.ShippingProvider != provider {
		t.Fatalf("shipping provider not attached: %+v", dto.ShippingProvider)
	}
}

func TestUpdateStatusRefundFlipsPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := seedGatewayOrder(f, uuid.New(), enums.OrderStatusCancelled, enums.PaymentStatusCompleted)

	dto, err := f.svc.UpdateStatus(context.Background(), order.ID, UpdateStatusInput{Status: enums.OrderStatusRefunded})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if dto.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("payment status = %s, want refunded", dto.PaymentStatus)
	}
}

func TestUpdateStatusFastForwardRecordsEachHop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := seedGatewayOrder(f, uuid.New(), enums.OrderStatusConfirmed, enums.PaymentStatusCompleted)
	tracking := "TRK456"

	dto, err := f.svc.UpdateStatus(context.Background(), order.ID, UpdateStatusInput{
		Status:     enums.OrderStatusShipped,
		TrackingID: &tracking,
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if dto.Status != enums.OrderStatusShipped {
		t.Fatalf("status = %s, want shipped", dto.Status)
	}
	if dto.TrackingID == nil || *dto.TrackingID != tracking {
		t.Fatalf("tracking id not attached: %+v", dto.TrackingID)
	}

	history := f.repo.historyFor(order.ID)
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	if history[0].FromStatus != enums.OrderStatusConfirmed || history[0].ToStatus != enums.OrderStatusProcessing {
		t.Fatalf("first hop = %s -> %s", history[0].FromStatus, history[0].ToStatus)
	}
	if history[1].FromStatus != enums.OrderStatusProcessing || history[1].ToStatus != enums.OrderStatusShipped {
		t.Fatalf("second hop = %s -> %s", history[1].FromStatus, history[1].ToStatus)
	}
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := seedGatewayOrder(f, uuid.New(), enums.OrderStatusShipped, enums.PaymentStatusCompleted)

	// backward moves stay forbidden
	_, err := f.svc.UpdateStatus(context.Background(), order.ID, UpdateStatusInput{Status: enums.OrderStatusProcessing})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(f.repo.historyFor(order.ID)) != 0 {
		t.Fatal("denied transition must not append history")
	}
}
