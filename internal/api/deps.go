package api

import (
	"context"

	"github.com/syncops/eventhooks/internal/domain"
	"github.com/syncops/eventhooks/internal/engine"
)

// Store is the persistence the HTTP API needs. Both the Postgres and the
// SQLite stores implement it.
type Store interface {
	CreateEvent(ctx context.Context, req domain.CreateEventRequest) (*domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)

	CreateWebhook(ctx context.Context, req domain.CreateWebhookRequest) (*domain.Webhook, error)
	GetWebhook(ctx context.Context, id string) (*domain.Webhook, error)
	ListWebhooks(ctx context.Context) ([]domain.Webhook, error)
	UpdateWebhook(ctx context.Context, id string, req domain.UpdateWebhookRequest) (*domain.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) (bool, error)

	GetDeliveryMetrics(ctx context.Context) (*domain.DeliveryMetrics, error)
}

// Dispatcher runs the fan-out for one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventID string) (*domain.DispatchResult, error)
}

// TriggerQueue schedules events for automatic dispatch.
type TriggerQueue interface {
	Enqueue(ctx context.Context, eventID string) error
	Depth(ctx context.Context) (int64, error)
}

// HealthTracker reports and clears per-webhook delivery health.
type HealthTracker interface {
	GetHealth(ctx context.Context, webhookID string) engine.WebhookHealth
	Forget(ctx context.Context, webhookID string)
}

// TriggerLimiter throttles manual dispatch triggers.
type TriggerLimiter interface {
	Allow(ctx context.Context, eventID string) bool
}

// ClientCounter reports connected live-feed clients.
type ClientCounter interface {
	ClientCount() int
}
