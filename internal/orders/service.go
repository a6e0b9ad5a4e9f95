package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teeprintlabs/teeprint-backend/internal/cart"
	"github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/internal/notifications"
	"github.com/teeprintlabs/teeprint-backend/pkg/db/models"
	"github.com/teeprintlabs/teeprint-backend/pkg/enums"
	pkgerrors "github.com/teeprintlabs/teeprint-backend/pkg/errors"
	"github.com/teeprintlabs/teeprint-backend/pkg/gateway"
	"github.com/teeprintlabs/teeprint-backend/pkg/logger"
	"github.com/teeprintlabs/teeprint-backend/pkg/metrics"
	"github.com/teeprintlabs/teeprint-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentGateway interface {
	CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error)
	VerifySignature(gatewayOrderID, paymentID, signature string) bool
}

// Service orchestrates checkout, payment verification and the order lifecycle.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*OrderDTO, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, input VerifyPaymentInput) (*OrderDTO, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error)
}

type service struct {
	repo     OrderRepository
	carts    cart.CartRepository
	coupons  coupons.CouponRepository
	tx       txRunner
	gateway  paymentGateway
	notifier notifications.Notifier
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds an order service backed by the provided stack. Metrics
// are optional.
func NewService(
	repo OrderRepository,
	cartRepo cart.CartRepository,
	couponRepo coupons.CouponRepository,
	tx txRunner,
	gw paymentGateway,
	notifier notifications.Notifier,
	checkoutMetrics *metrics.CheckoutMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if couponRepo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		carts:    cartRepo,
		coupons:  couponRepo,
		tx:       tx,
		gateway:  gw,
		notifier: notifier,
		metrics:  checkoutMetrics,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// CheckoutInput carries everything the buyer submits at checkout.
type CheckoutInput struct {
	ShippingAddress types.Address
	PaymentMethod   enums.PaymentMethod
}

// VerifyPaymentInput is the gateway callback payload forwarded by the client.
type VerifyPaymentInput struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// UpdateStatusInput is the admin transition payload.
type UpdateStatusInput struct {
	Status           enums.OrderStatus
	TrackingID       *string
	ShippingProvider *string
}

// Checkout snapshots the cart into an immutable order. Pay-on-delivery orders
// confirm immediately; gateway orders stay pending until the payment is
// verified.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if !input.ShippingAddress.Complete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address requires name, phone and address line")
	}

	userCart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if len(userCart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	order := s.orderFromCart(userID, userCart, input)

	start := time.Now()
	defer func() {
		s.metrics.ObserveCheckoutDuration(input.PaymentMethod.String(), time.Since(start).Seconds())
	}()

	var checkoutErr error
	switch input.PaymentMethod {
	case enums.PaymentMethodCOD:
		checkoutErr = s.checkoutCOD(ctx, order, userCart)
	case enums.PaymentMethodGateway:
		checkoutErr = s.checkoutGateway(ctx, order, userCart)
	}
	if checkoutErr != nil {
		s.metrics.IncCheckoutAttempt(input.PaymentMethod.String(), "failure")
		return nil, checkoutErr
	}

	s.metrics.IncCheckoutAttempt(input.PaymentMethod.String(), "success")
	return toDTO(order), nil
}

func (s *service) orderFromCart(userID uuid.UUID, userCart *models.Cart, input CheckoutInput) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     newOrderNumber(s.now()),
		UserID:          userID,
		CouponID:        userCart.CouponID,
		Status:          enums.OrderStatusPending,
		ItemsTotal:      userCart.ItemsTotal,
		Discount:        userCart.Discount,
		Tax:             userCart.Tax,
		Shipping:        userCart.Shipping,
		Total:           userCart.Total,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		ShippingAddress: input.ShippingAddress,
	}
	if userCart.Coupon != nil {
		code := userCart.Coupon.Code
		order.CouponCode = &code
	}
	order.Items = make([]models.OrderItem, 0, len(userCart.Items))
	for _, item := range userCart.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			DesignID:       item.DesignID,
			DesignSnapshot: item.DesignSnapshot,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			SelectedSize:   item.SelectedSize,
			SelectedColor:  item.SelectedColor,
		})
	}
	return order
}

func (s *service) checkoutCOD(ctx context.Context, order *models.Order, userCart *models.Cart) error {
	note := "pay on delivery checkout"
	err := s.runNumbered(ctx, order, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return err
		}
		if err := s.transition(ctx, repo, order, enums.OrderStatusConfirmed, &note); err != nil {
			return err
		}
		if order.CouponID != nil {
			ok, err := s.coupons.WithTx(tx).IncrementUsage(ctx, *order.CouponID)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeCouponRejected, "coupon usage limit reached").
					WithDetails(map[string]any{"reason": string(coupons.ReasonExhausted)})
			}
		}
		return s.carts.WithTx(tx).Empty(ctx, userCart.ID)
	})
	if err != nil {
		return err
	}

	s.notifyAsync(ctx, order, s.notifier.OrderConfirmed)
	return nil
}

func (s *service) checkoutGateway(ctx context.Context, order *models.Order, userCart *models.Cart) error {
	err := s.runNumbered(ctx, order, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).Create(ctx, order)
		return err
	})
	if err != nil {
		return err
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		Amount:   order.Total,
		Currency: "USD",
		Receipt:  order.OrderNumber,
	})
	if err != nil {
		s.metrics.IncGatewayFailure()
		if delErr := s.repo.Delete(ctx, order.ID); delErr != nil {
			s.logg.Error(ctx, "compensating order delete failed", delErr)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order.GatewayOrderID = &intent.GatewayOrderID
		if err := repo.Save(ctx, order); err != nil {
			return err
		}
		return s.carts.WithTx(tx).Empty(ctx, userCart.ID)
	})
}

// runNumbered runs the transactional body, regenerating the order number and
// retrying when the unique index rejects a collision.
func (s *service) runNumbered(ctx context.Context, order *models.Order, fn func(tx *gorm.DB) error) error {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		err := s.tx.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if isDuplicateErr(err) && strings.Contains(strings.ToLower(err.Error()), "order_number") {
			order.OrderNumber = newOrderNumber(s.now())
			continue
		}
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	return pkgerrors.New(pkgerrors.CodeInternal, "could not allocate an order number")
}

// VerifyPayment checks the gateway signature and completes the payment
// exactly once. A mismatched signature leaves the order untouched; a reused
// payment id conflicts without a second coupon increment.
func (s *service) VerifyPayment(ctx context.Context, userID uuid.UUID, input VerifyPaymentInput) (*OrderDTO, error) {
	if input.GatewayOrderID == "" || input.PaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id, payment id and signature are required")
	}

	order, err := s.repo.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if !s.gateway.VerifySignature(input.GatewayOrderID, input.PaymentID, input.Signature) {
		s.metrics.IncPaymentVerification("signature_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeSignatureMismatch, "payment signature verification failed")
	}

	if order.PaymentStatus == enums.PaymentStatusCompleted {
		s.metrics.IncPaymentVerification("duplicate")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already verified")
	}
	exists, err := s.repo.ExistsByGatewayPaymentID(ctx, input.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check payment id")
	}
	if exists {
		s.metrics.IncPaymentVerification("duplicate")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already verified")
	}

	note := "gateway payment verified"
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		paidAt := s.now()
		order.PaymentStatus = enums.PaymentStatusCompleted
		order.GatewayPaymentID = &input.PaymentID
		order.GatewaySignature = &input.Signature
		order.PaidAt = &paidAt
		if err := s.transition(ctx, repo, order, enums.OrderStatusConfirmed, &note); err != nil {
			return err
		}
		if order.CouponID != nil {
			ok, err := s.coupons.WithTx(tx).IncrementUsage(ctx, *order.CouponID)
			if err != nil {
				return err
			}
			if !ok {
				// payment is already settled, the coupon race only gets logged
				s.logg.Warn(ctx, "coupon usage limit reached after payment settled")
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateErr(err) {
			s.metrics.IncPaymentVerification("duplicate")
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already verified")
		}
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete payment")
	}

	s.metrics.IncPaymentVerification("success")
	s.notifyAsync(ctx, order, s.notifier.OrderConfirmed)
	return toDTO(order), nil
}

// ListOrders returns the user's orders, newest first.
func (s *service) ListOrders(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	dtos := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *toDTO(&rows[i]))
	}
	return dtos, nil
}

// GetOrder returns one order restricted to its owner.
func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByIDAndUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return toDTO(order), nil
}

// CancelOrder lets the owner cancel while the order has not shipped.
func (s *service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByIDAndUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !Cancellable(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}

	note := "cancelled by customer"
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transition(ctx, s.repo.WithTx(tx), order, enums.OrderStatusCancelled, &note)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}

	s.notifyAsync(ctx, order, s.notifier.OrderStatusUpdated)
	return toDTO(order), nil
}

// UpdateStatus applies an admin transition, attaching tracking data when the
// order ships.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	// operators may fast-forward along the fulfillment path, each skipped
	// state still gets its own history row
	hops, forward := ForwardHops(order.Status, input.Status)
	if !forward {
		hops = []enums.OrderStatus{input.Status}
	}

	note := "status updated by admin"
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, hop := range hops {
			if hop == enums.OrderStatusShipped {
				order.TrackingID = input.TrackingID
				order.ShippingProvider = input.ShippingProvider
			}
			if hop == enums.OrderStatusRefunded && order.PaymentStatus == enums.PaymentStatusCompleted {
				order.PaymentStatus = enums.PaymentStatusRefunded
			}
			if err := s.transition(ctx, repo, order, hop, &note); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	s.notifyAsync(ctx, order, s.notifier.OrderStatusUpdated)
	return toDTO(order), nil
}

// transition moves the order through the state machine and appends exactly
// one history row. Timestamps for terminal states are stamped here.
func (s *service) transition(ctx context.Context, repo OrderRepository, order *models.Order, to enums.OrderStatus, note *string) error {
	from := order.Status
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
			WithDetails(map[string]any{"from": from, "to": to})
	}

	order.Status = to
	switch to {
	case enums.OrderStatusCancelled:
		now := s.now()
		order.CancelledAt = &now
	case enums.OrderStatusDelivered:
		now := s.now()
		order.DeliveredAt = &now
	}

	if err := repo.Save(ctx, order); err != nil {
		return err
	}
	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		Note:       note,
	}); err != nil {
		return err
	}

	s.metrics.IncTransition(to.String())
	return nil
}

func (s *service) notifyAsync(ctx context.Context, order *models.Order, fn func(context.Context, *models.Order)) {
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logg.Error(detached, "notification dispatch panicked", fmt.Errorf("%v", r))
			}
		}()
		fn(detached, order)
	}()
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
