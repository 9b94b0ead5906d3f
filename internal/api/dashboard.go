package api

import (
	"net/http"

	"github.com/syncops/eventhooks/internal/domain"
)

type DashboardHandler struct {
	store   Store
	queue   TriggerQueue
	health  HealthTracker
	clients ClientCounter
}

func NewDashboardHandler(s Store, queue TriggerQueue, health HealthTracker, clients ClientCounter) *DashboardHandler {
	return &DashboardHandler{store: s, queue: queue, health: health, clients: clients}
}

type metricsResponse struct {
	domain.DeliveryMetrics
	QueueDepth       int64 `json:"queue_depth"`
	WebSocketClients int   `json:"websocket_clients"`
}

// Metrics returns aggregated system metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	resp := metricsResponse{DeliveryMetrics: *metrics}

	if h.queue != nil {
		// A Redis hiccup should not hide the database counters.
		if depth, err := h.queue.Depth(r.Context()); err == nil {
			resp.QueueDepth = depth
		}
	}
	if h.clients != nil {
		resp.WebSocketClients = h.clients.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}

// WebhooksHealth returns every webhook with its delivery health.
func (h *DashboardHandler) WebhooksHealth(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.store.ListWebhooks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	result := make([]webhookHealthResponse, 0, len(webhooks))
	for i := range webhooks {
		result = append(result, healthOf(r.Context(), h.health, &webhooks[i]))
	}

	respondJSON(w, http.StatusOK, result)
}
