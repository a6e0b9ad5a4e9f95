package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records counters for the checkout and payment paths.
type CheckoutMetrics struct {
	checkoutAttempts     *prometheus.CounterVec
	checkoutDuration     *prometheus.HistogramVec
	gatewayFailures      prometheus.Counter
	paymentVerifications *prometheus.CounterVec
	transitions          *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	checkoutAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by payment method and outcome.",
	}, []string{"method", "outcome"})
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Checkout latency by payment method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	gatewayFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_intent_failures_total",
		Help: "Payment gateway intent creation failures.",
	})
	paymentVerifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment verification attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order lifecycle transitions by target status.",
	}, []string{"to_status"})
	reg.MustRegister(checkoutAttempts, checkoutDuration, gatewayFailures, paymentVerifications, transitions)
	return &CheckoutMetrics{
		checkoutAttempts:     checkoutAttempts,
		checkoutDuration:     checkoutDuration,
		gatewayFailures:      gatewayFailures,
		paymentVerifications: paymentVerifications,
		transitions:          transitions,
	}
}

// IncCheckoutAttempt counts one checkout attempt.
func (c *CheckoutMetrics) IncCheckoutAttempt(method, outcome string) {
	if c == nil || c.checkoutAttempts == nil {
		return
	}
	c.checkoutAttempts.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

// ObserveCheckoutDuration records how long one checkout took.
func (c *CheckoutMetrics) ObserveCheckoutDuration(method string, seconds float64) {
	if c == nil || c.checkoutDuration == nil {
		return
	}
	c.checkoutDuration.WithLabelValues(normalizeLabel(method)).Observe(seconds)
}

// IncGatewayFailure counts one failed gateway intent creation.
func (c *CheckoutMetrics) IncGatewayFailure() {
	if c == nil || c.gatewayFailures == nil {
		return
	}
	c.gatewayFailures.Inc()
}

// IncPaymentVerification counts one verification attempt.
func (c *CheckoutMetrics) IncPaymentVerification(outcome string) {
	if c == nil || c.paymentVerifications == nil {
		return
	}
	c.paymentVerifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition counts one lifecycle transition.
func (c *CheckoutMetrics) IncTransition(toStatus string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
