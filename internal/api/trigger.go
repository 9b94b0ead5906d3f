package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/syncops/eventhooks/internal/domain"
)

// TriggerHandler serves the dispatch entry points: the function-style
// process-webhook-event endpoint and the dashboard's manual resend.
type TriggerHandler struct {
	dispatcher Dispatcher
	limiter    TriggerLimiter
	logger     *slog.Logger
}

func NewTriggerHandler(d Dispatcher, limiter TriggerLimiter, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{dispatcher: d, limiter: limiter, logger: logger}
}

type processEventRequest struct {
	EventID string `json:"evento_id"`
}

type triggerResponse struct {
	Message string                   `json:"message"`
	Results []domain.DeliveryOutcome `json:"results,omitempty"`
}

// ProcessEvent handles POST /functions/process-webhook-event. Every failure,
// including an unreadable body, is a 500 with an {error} object.
func (h *TriggerHandler) ProcessEvent(w http.ResponseWriter, r *http.Request) {
	var req processEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusInternalServerError, "invalid request body")
		return
	}
	if req.EventID == "" {
		respondError(w, http.StatusInternalServerError, "evento_id is required")
		return
	}

	h.dispatch(w, r, req.EventID)
}

// Dispatch handles POST /api/v1/events/{id}/dispatch.
func (h *TriggerHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, chi.URLParam(r, "id"))
}

func (h *TriggerHandler) dispatch(w http.ResponseWriter, r *http.Request, eventID string) {
	if h.limiter != nil && !h.limiter.Allow(r.Context(), eventID) {
		respondError(w, http.StatusTooManyRequests, "too many dispatch requests for this event")
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			h.logger.Warn("dispatch requested for unknown event", "event_id", eventID)
		} else {
			h.logger.Error("dispatch failed", "event_id", eventID, "error", err)
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Attempted == 0 {
		respondJSON(w, http.StatusOK, triggerResponse{Message: "no webhook configured for this event"})
		return
	}

	respondJSON(w, http.StatusOK, triggerResponse{
		Message: "webhooks processed",
		Results: res.Outcomes,
	})
}
