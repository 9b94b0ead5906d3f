package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/syncops/eventhooks/internal/domain"
	"github.com/syncops/eventhooks/internal/engine"
)

type WebhookHandler struct {
	store  Store
	health HealthTracker
}

// NewWebhookHandler creates the subscription handler. health may be nil
// when Redis is not configured.
func NewWebhookHandler(s Store, health HealthTracker) *WebhookHandler {
	return &WebhookHandler{store: s, health: health}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wh, err := h.store.CreateWebhook(r.Context(), req)
	if err != nil {
		respondStoreError(w, err, "failed to create webhook")
		return
	}

	respondJSON(w, http.StatusCreated, wh)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.store.ListWebhooks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	if webhooks == nil {
		webhooks = []domain.Webhook{}
	}

	respondJSON(w, http.StatusOK, webhooks)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	wh, err := h.store.GetWebhook(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook")
		return
	}
	if wh == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	respondJSON(w, http.StatusOK, wh)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Empty() {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wh, err := h.store.UpdateWebhook(r.Context(), id, req)
	if err != nil {
		respondStoreError(w, err, "failed to update webhook")
		return
	}
	if wh == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	respondJSON(w, http.StatusOK, wh)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.store.DeleteWebhook(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	if h.health != nil {
		h.health.Forget(r.Context(), id)
	}

	w.WriteHeader(http.StatusNoContent)
}

type webhookHealthResponse struct {
	WebhookID       string                `json:"webhook_id"`
	Name            string                `json:"name"`
	URL             string                `json:"url"`
	IsActive        bool                  `json:"is_active"`
	TotalDeliveries int64                 `json:"total_deliveries"`
	TotalFailures   int64                 `json:"total_failures"`
	Health          *engine.WebhookHealth `json:"health"`
}

func healthOf(ctx context.Context, tracker HealthTracker, wh *domain.Webhook) webhookHealthResponse {
	resp := webhookHealthResponse{
		WebhookID:       wh.ID,
		Name:            wh.Name,
		URL:             wh.URL,
		IsActive:        wh.IsActive,
		TotalDeliveries: wh.TotalDeliveries,
		TotalFailures:   wh.TotalFailures,
	}
	if tracker != nil {
		state := tracker.GetHealth(ctx, wh.ID)
		resp.Health = &state
	}
	return resp
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	wh, err := h.store.GetWebhook(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get webhook")
		return
	}
	if wh == nil {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}

	respondJSON(w, http.StatusOK, healthOf(r.Context(), h.health, wh))
}
