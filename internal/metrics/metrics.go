package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcome label values.
const (
	OutcomeTransitioned    = "transitioned"
	OutcomeDuplicate       = "duplicate"
	OutcomeIgnored         = "ignored"
	OutcomeUnknownSession  = "unknown_session"
	OutcomeAwaitingPayment = "awaiting_payment"
	OutcomeRejected        = "rejected"
)

type Registry struct {
	reg *prometheus.Registry

	OrdersCreated     prometheus.Counter
	OrdersRejected    prometheus.Counter
	WebhookEvents     *prometheus.CounterVec
	GatewayErrors     prometheus.Counter
	GatewayLatency    prometheus.Histogram
	FulfillmentErrors prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Checkout sessions opened and stored as pending orders",
	})
	ordersRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Order drafts blocked by the moderation filter",
	})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook events by provider type and processing outcome",
	}, []string{"type", "outcome"})
	gatewayErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_gateway_errors_total",
		Help: "Failed payment gateway calls",
	})
	gatewayLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Latency of checkout session creation",
		Buckets: prometheus.DefBuckets,
	})
	fulfillmentErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_errors_total",
		Help: "Fulfillment side effects that failed after an order completed",
	})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration by route and method",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	r.MustRegister(ordersCreated, ordersRejected, webhookEvents, gatewayErrors, gatewayLatency,
		fulfillmentErrors, httpRequests, httpDuration)

	return &Registry{
		reg:               r,
		OrdersCreated:     ordersCreated,
		OrdersRejected:    ordersRejected,
		WebhookEvents:     webhookEvents,
		GatewayErrors:     gatewayErrors,
		GatewayLatency:    gatewayLatency,
		FulfillmentErrors: fulfillmentErrors,
		httpRequests:      httpRequests,
		httpDuration:      httpDuration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// ObserveWebhook counts one processed webhook event.
func (r *Registry) ObserveWebhook(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	r.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// Instrument is chi middleware recording request count and duration per
// route pattern.
func (r *Registry) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		r.httpDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
		r.httpRequests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
	})
}
