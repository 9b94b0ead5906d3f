package domain

import (
	"fmt"
	"net/url"
	"time"
)

// Webhook is a registered endpoint that wants notification of specific
// event types. Delivery counters are only ever changed by the dispatcher.
type Webhook struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	EventTypes      []EventType       `json:"event_types"`
	SecretKey       string            `json:"secret_key,omitempty"`
	Headers         map[string]string `json:"headers"`
	IsActive        bool              `json:"is_active"`
	LastDeliveryAt  *time.Time        `json:"last_delivery_at,omitempty"`
	TotalDeliveries int64             `json:"total_deliveries"`
	TotalFailures   int64             `json:"total_failures"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Subscribes reports whether the webhook wants events of type t.
func (w *Webhook) Subscribes(t EventType) bool {
	for _, et := range w.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

type CreateWebhookRequest struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	EventTypes []EventType       `json:"event_types"`
	SecretKey  string            `json:"secret_key,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	IsActive   *bool             `json:"is_active,omitempty"`
}

// Active returns the requested active flag, defaulting to true.
func (r CreateWebhookRequest) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

func (r CreateWebhookRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validateURL(r.URL); err != nil {
		return err
	}
	return validateEventTypes(r.EventTypes)
}

// UpdateWebhookRequest is a partial update; nil fields are left unchanged.
type UpdateWebhookRequest struct {
	Name       *string            `json:"name,omitempty"`
	URL        *string            `json:"url,omitempty"`
	EventTypes *[]EventType       `json:"event_types,omitempty"`
	SecretKey  *string            `json:"secret_key,omitempty"`
	Headers    *map[string]string `json:"headers,omitempty"`
	IsActive   *bool              `json:"is_active,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r UpdateWebhookRequest) Empty() bool {
	return r.Name == nil && r.URL == nil && r.EventTypes == nil &&
		r.SecretKey == nil && r.Headers == nil && r.IsActive == nil
}

func (r UpdateWebhookRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if r.URL != nil {
		if err := validateURL(*r.URL); err != nil {
			return err
		}
	}
	if r.EventTypes != nil {
		if err := validateEventTypes(*r.EventTypes); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the update into w.
func (r UpdateWebhookRequest) Apply(w *Webhook) {
	if r.Name != nil {
		w.Name = *r.Name
	}
	if r.URL != nil {
		w.URL = *r.URL
	}
	if r.EventTypes != nil {
		w.EventTypes = *r.EventTypes
	}
	if r.SecretKey != nil {
		w.SecretKey = *r.SecretKey
	}
	if r.Headers != nil {
		w.Headers = *r.Headers
	}
	if r.IsActive != nil {
		w.IsActive = *r.IsActive
	}
}

// AttemptRecord is what the registry needs to account for one delivery.
type AttemptRecord struct {
	AttemptedAt time.Time
	Succeeded   bool
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidInput)
	}
	return nil
}

func validateEventTypes(types []EventType) error {
	for _, t := range types {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, t)
		}
	}
	return nil
}
