package domain

import "errors"

var (
	// ErrEventNotFound is returned when the referenced event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrWebhookNotFound is returned when a webhook id does not exist.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrSubscriptionLookup is returned when the registry cannot resolve the
	// audience of an event.
	ErrSubscriptionLookup = errors.New("webhook lookup failed")

	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
