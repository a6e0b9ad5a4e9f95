package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teeprintlabs/teeprint-backend/api/controllers"
	"github.com/teeprintlabs/teeprint-backend/api/middleware"
	"github.com/teeprintlabs/teeprint-backend/internal/cart"
	"github.com/teeprintlabs/teeprint-backend/internal/coupons"
	"github.com/teeprintlabs/teeprint-backend/internal/orders"
	"github.com/teeprintlabs/teeprint-backend/pkg/config"
	"github.com/teeprintlabs/teeprint-backend/pkg/db"
	"github.com/teeprintlabs/teeprint-backend/pkg/logger"
	pkgredis "github.com/teeprintlabs/teeprint-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	metricsGatherer prometheus.Gatherer,
	cartService cart.Service,
	ordersService orders.Service,
	couponService coupons.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Post("/add", controllers.CartAddItem(cartService, logg))
			r.Put("/item/{itemId}", controllers.CartUpdateItem(cartService, logg))
			r.Delete("/item/{itemId}", controllers.CartRemoveItem(cartService, logg))
			r.Post("/coupon/apply", controllers.CartApplyCoupon(cartService, logg))
			r.Delete("/coupon", controllers.CartRemoveCoupon(cartService, logg))
			r.Delete("/clear", controllers.CartClear(cartService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.OrderCheckout(ordersService, logg))
			r.Post("/verify-payment", controllers.OrderVerifyPayment(ordersService, logg))
			r.Get("/", controllers.OrderList(ordersService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
			r.Put("/{orderId}/cancel", controllers.OrderCancel(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Put("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(ordersService, logg))
		r.Route("/coupons", func(r chi.Router) {
			r.Post("/", controllers.AdminCouponCreate(couponService, logg))
			r.Get("/", controllers.AdminCouponList(couponService, logg))
		})
	})

	return r
}
