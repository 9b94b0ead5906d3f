package domain

// DeliveryOutcome is the in-memory result of one delivery attempt. Attempts
// that received a response carry Status and Success; attempts that never got
// one carry only Error.
type DeliveryOutcome struct {
	SubscriptionID string `json:"subscription_id"`
	Status         *int   `json:"status,omitempty"`
	Success        *bool  `json:"success,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ResponseOutcome builds the outcome of an attempt that got an HTTP response.
func ResponseOutcome(webhookID string, status int) DeliveryOutcome {
	ok := status >= 200 && status < 300
	return DeliveryOutcome{
		SubscriptionID: webhookID,
		Status:         &status,
		Success:        &ok,
	}
}

// TransportOutcome builds the outcome of an attempt that never got a response.
func TransportOutcome(webhookID string, err error) DeliveryOutcome {
	return DeliveryOutcome{
		SubscriptionID: webhookID,
		Error:          err.Error(),
	}
}

// Succeeded reports whether the receiver answered with a 2xx status.
func (o DeliveryOutcome) Succeeded() bool {
	return o.Success != nil && *o.Success
}

// StatusCode returns the response status, or 0 when there was none.
func (o DeliveryOutcome) StatusCode() int {
	if o.Status == nil {
		return 0
	}
	return *o.Status
}

// DispatchResult aggregates the outcomes of one dispatch call.
type DispatchResult struct {
	EventID   string            `json:"event_id"`
	EventType EventType         `json:"event_type"`
	Attempted int               `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Outcomes  []DeliveryOutcome `json:"outcomes"`
}

// NewDispatchResult tallies outcomes into a result.
func NewDispatchResult(evt *Event, outcomes []DeliveryOutcome) *DispatchResult {
	if outcomes == nil {
		outcomes = []DeliveryOutcome{}
	}
	res := &DispatchResult{
		EventID:   evt.ID,
		EventType: evt.EventType,
		Attempted: len(outcomes),
		Outcomes:  outcomes,
	}
	for _, o := range outcomes {
		if o.Succeeded() {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

// DeliveryMetrics holds aggregated delivery statistics for the dashboard.
type DeliveryMetrics struct {
	TotalDeliveries int64   `json:"total_deliveries"`
	TotalFailures   int64   `json:"total_failures"`
	SuccessRate     float64 `json:"success_rate"`
	ActiveWebhooks  int     `json:"active_webhooks"`
	TotalWebhooks   int     `json:"total_webhooks"`
	TotalEvents     int     `json:"total_events"`
}

// ComputeSuccessRate fills SuccessRate as a percentage.
func (m *DeliveryMetrics) ComputeSuccessRate() {
	if m.TotalDeliveries > 0 {
		m.SuccessRate = float64(m.TotalDeliveries-m.TotalFailures) / float64(m.TotalDeliveries) * 100
	}
}
