package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syncops/eventhooks/internal/domain"
)

// Delivery results used as the "result" label.
const (
	ResultSuccess        = "success"
	ResultHTTPError      = "http_error"
	ResultTransportError = "transport_error"
)

// Metrics holds the Prometheus instruments for deliveries.
type Metrics struct {
	DeliveriesTotal *prometheus.CounterVec
	ResponseStatus  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the delivery instruments and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhooks_deliveries_total",
			Help: "Webhook delivery attempts by event type and result.",
		}, []string{"event_type", "result"}),
		ResponseStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhooks_delivery_responses_total",
			Help: "HTTP status codes returned by webhook receivers.",
		}, []string{"code"}),
		gatherer: reg,
	}
	reg.MustRegister(m.DeliveriesTotal, m.ResponseStatus)
	return m
}

// ObserveDelivery counts one delivery outcome.
func (m *Metrics) ObserveDelivery(_ context.Context, evt *domain.Event, _ *domain.Webhook, outcome domain.DeliveryOutcome) {
	m.DeliveriesTotal.WithLabelValues(string(evt.EventType), resultOf(outcome)).Inc()
	if outcome.Status != nil {
		m.ResponseStatus.WithLabelValues(strconv.Itoa(*outcome.Status)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func resultOf(outcome domain.DeliveryOutcome) string {
	switch {
	case outcome.Succeeded():
		return ResultSuccess
	case outcome.Status != nil:
		return ResultHTTPError
	default:
		return ResultTransportError
	}
}
