package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syncops/eventhooks/internal/domain"
	"github.com/syncops/eventhooks/internal/observability"
)

// EventStore is the read side of the event log the dispatcher needs.
// GetEvent returns (nil, nil) when the event does not exist.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
}

// WebhookRegistry resolves subscriptions and keeps their delivery counters.
type WebhookRegistry interface {
	ListActiveWebhooksForEventType(ctx context.Context, eventType domain.EventType) ([]domain.Webhook, error)
	RecordDeliveryAttempt(ctx context.Context, webhookID string, rec domain.AttemptRecord) error
}

// Deliverer performs one HTTP delivery and classifies its result.
type Deliverer interface {
	Deliver(ctx context.Context, wh *domain.Webhook, payload []byte) domain.DeliveryOutcome
}

// DeliveryObserver is notified after each attempt has been recorded.
// Observers must not block for long; they run on the delivery goroutine.
type DeliveryObserver interface {
	ObserveDelivery(ctx context.Context, evt *domain.Event, wh *domain.Webhook, outcome domain.DeliveryOutcome)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxParallel caps concurrent deliveries per dispatch. n <= 0 means
// one goroutine per webhook.
func WithMaxParallel(n int) Option {
	return func(d *Dispatcher) { d.maxParallel = n }
}

// WithObservers registers delivery observers such as the health tracker.
func WithObservers(obs ...DeliveryObserver) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, obs...) }
}

// WithTracer sets the span source.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithClock overrides the attempt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher fans one event out to every active webhook subscribed to its
// type and waits for all deliveries to settle.
type Dispatcher struct {
	events      EventStore
	registry    WebhookRegistry
	deliverer   Deliverer
	observers   []DeliveryObserver
	tracer      *observability.Tracer
	logger      *slog.Logger
	maxParallel int
	now         func() time.Time
}

func NewDispatcher(events EventStore, registry WebhookRegistry, deliverer Deliverer, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		events:    events,
		registry:  registry,
		deliverer: deliverer,
		logger:    logger,
		tracer:    observability.NewTracer(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// webhookPayload is the JSON body POSTed to subscribers.
type webhookPayload struct {
	EventType    domain.EventType `json:"event_type"`
	Employee     json.RawMessage  `json:"employee"`
	PreviousData json.RawMessage  `json:"previous_data"`
	Timestamp    time.Time        `json:"timestamp"`
}

// BuildPayload renders the body delivered for evt.
func BuildPayload(evt *domain.Event) ([]byte, error) {
	p := webhookPayload{
		EventType:    evt.EventType,
		Employee:     evt.NewData,
		PreviousData: evt.PreviousData,
		Timestamp:    evt.CreatedAt,
	}
	if len(p.Employee) == 0 {
		p.Employee = json.RawMessage("null")
	}
	if len(p.PreviousData) == 0 {
		p.PreviousData = json.RawMessage("null")
	}
	return json.Marshal(p)
}

// Dispatch delivers the event identified by eventID to every matching
// webhook. Individual delivery failures are reported in the result, not as
// an error.
func (d *Dispatcher) Dispatch(ctx context.Context, eventID string) (res *domain.DispatchResult, err error) {
	ctx, span := d.tracer.StartDispatchSpan(ctx, eventID)
	defer func() {
		attempted, failed := 0, 0
		if res != nil {
			attempted, failed = res.Attempted, res.Failed
		}
		d.tracer.EndDispatchSpan(span, attempted, failed, err)
	}()

	evt, err := d.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading event %s: %w", eventID, err)
	}
	if evt == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}

	webhooks, err := d.registry.ListActiveWebhooksForEventType(ctx, evt.EventType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscriptionLookup, err)
	}

	if len(webhooks) == 0 {
		d.logger.Info("no webhook configured for event",
			"event_id", evt.ID,
			"event_type", evt.EventType,
		)
		return domain.NewDispatchResult(evt, nil), nil
	}

	payload, err := BuildPayload(evt)
	if err != nil {
		return nil, fmt.Errorf("building payload: %w", err)
	}

	outcomes := make([]domain.DeliveryOutcome, len(webhooks))

	var sem chan struct{}
	if d.maxParallel > 0 {
		sem = make(chan struct{}, d.maxParallel)
	}

	var wg sync.WaitGroup
	for i := range webhooks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("delivery goroutine panicked",
						"event_id", evt.ID,
						"webhook_id", webhooks[i].ID,
						"panic", r,
					)
					outcomes[i] = domain.DeliveryOutcome{
						SubscriptionID: webhooks[i].ID,
						Error:          fmt.Sprintf("delivery panicked: %v", r),
					}
				}
			}()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			outcomes[i] = d.deliverOne(ctx, evt, &webhooks[i], payload)
		}(i)
	}
	wg.Wait()

	res = domain.NewDispatchResult(evt, outcomes)
	d.logger.Info("dispatch complete",
		"event_id", evt.ID,
		"event_type", evt.EventType,
		"attempted", res.Attempted,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
	)
	return res, nil
}

// deliverOne runs a single delivery, records it and notifies observers.
// Every attempt is counted, including one whose sender panicked.
func (d *Dispatcher) deliverOne(ctx context.Context, evt *domain.Event, wh *domain.Webhook, payload []byte) domain.DeliveryOutcome {
	spanCtx, span := d.tracer.StartDeliverySpan(ctx, evt.ID, wh.ID)
	outcome := d.attempt(spanCtx, evt, wh, payload)
	d.tracer.EndDeliverySpan(span, outcome.StatusCode(), outcome.Error)

	// The attempt happened; count it even if the caller has gone away.
	recordCtx := context.WithoutCancel(ctx)
	d.record(recordCtx, evt, wh, outcome)

	if outcome.Succeeded() {
		d.logger.Info("delivery successful",
			"event_id", evt.ID,
			"webhook_id", wh.ID,
			"status_code", outcome.StatusCode(),
		)
	} else {
		d.logger.Warn("delivery failed",
			"event_id", evt.ID,
			"webhook_id", wh.ID,
			"status_code", outcome.StatusCode(),
			"error", outcome.Error,
		)
	}

	for _, obs := range d.observers {
		d.notify(recordCtx, obs, evt, wh, outcome)
	}
	return outcome
}

// attempt calls the deliverer, turning a panic into an error outcome.
func (d *Dispatcher) attempt(ctx context.Context, evt *domain.Event, wh *domain.Webhook, payload []byte) (outcome domain.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("delivery panicked",
				"event_id", evt.ID,
				"webhook_id", wh.ID,
				"panic", r,
			)
			outcome = domain.DeliveryOutcome{
				SubscriptionID: wh.ID,
				Error:          fmt.Sprintf("delivery panicked: %v", r),
			}
		}
	}()
	return d.deliverer.Deliver(ctx, wh, payload)
}

// record updates the webhook's counters. Failures are logged only; the
// delivery outcome stands whatever happens here.
func (d *Dispatcher) record(ctx context.Context, evt *domain.Event, wh *domain.Webhook, outcome domain.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recording delivery attempt panicked",
				"event_id", evt.ID,
				"webhook_id", wh.ID,
				"panic", r,
			)
		}
	}()
	rec := domain.AttemptRecord{AttemptedAt: d.now(), Succeeded: outcome.Succeeded()}
	if err := d.registry.RecordDeliveryAttempt(ctx, wh.ID, rec); err != nil {
		d.logger.Error("failed to record delivery attempt",
			"error", err,
			"event_id", evt.ID,
			"webhook_id", wh.ID,
		)
	}
}

func (d *Dispatcher) notify(ctx context.Context, obs DeliveryObserver, evt *domain.Event, wh *domain.Webhook, outcome domain.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("delivery observer panicked",
				"event_id", evt.ID,
				"webhook_id", wh.ID,
				"panic", r,
			)
		}
	}()
	obs.ObserveDelivery(ctx, evt, wh, outcome)
}
