package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/syncops/eventhooks/internal/domain"
)

type EventHandler struct {
	store        Store
	queue        TriggerQueue
	autoDispatch bool
	logger       *slog.Logger
}

// NewEventHandler creates the event log handler. queue may be nil, in which
// case events are only dispatched through the trigger endpoints.
func NewEventHandler(s Store, queue TriggerQueue, autoDispatch bool, logger *slog.Logger) *EventHandler {
	return &EventHandler{store: s, queue: queue, autoDispatch: autoDispatch, logger: logger}
}

type createEventResponse struct {
	Event          *domain.Event `json:"event"`
	DispatchQueued bool          `json:"dispatch_queued"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	event, err := h.store.CreateEvent(r.Context(), req)
	if err != nil {
		respondStoreError(w, err, "failed to create event")
		return
	}

	queued := false
	if h.autoDispatch && h.queue != nil {
		// The event is saved; a queue failure leaves it for a manual resend.
		if err := h.queue.Enqueue(r.Context(), event.ID); err != nil {
			h.logger.Error("failed to queue event for dispatch", "event_id", event.ID, "error", err)
		} else {
			queued = true
		}
	}

	respondJSON(w, http.StatusCreated, createEventResponse{
		Event:          event,
		DispatchQueued: queued,
	})
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.EventFilter{
		EmployeeID: q.Get("employee_id"),
		EventType:  domain.EventType(q.Get("event_type")),
	}
	if filter.EventType != "" && !filter.EventType.Valid() {
		respondError(w, http.StatusBadRequest, "unknown event_type")
		return
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	events, err := h.store.ListEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}
