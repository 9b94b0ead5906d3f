package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is an employee lifecycle transition. The wire values are the
// ones the dashboard stores in funcionario_eventos.tipo_evento.
type EventType string

const (
	EventAdmission    EventType = "admissao"
	EventTermination  EventType = "demissao"
	EventUpdate       EventType = "atualizacao"
	EventReactivation EventType = "reativacao"
)

// EventTypes returns every known event type in display order.
func EventTypes() []EventType {
	return []EventType{EventAdmission, EventTermination, EventUpdate, EventReactivation}
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventAdmission, EventTermination, EventUpdate, EventReactivation:
		return true
	}
	return false
}

// Event is an immutable record of a single employee lifecycle change.
type Event struct {
	ID           string          `json:"id"`
	EmployeeID   string          `json:"employee_id"`
	EventType    EventType       `json:"event_type"`
	PreviousData json.RawMessage `json:"previous_data,omitempty"`
	NewData      json.RawMessage `json:"new_data"`
	ActorID      *string         `json:"actor_id,omitempty"`
	Description  *string         `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type CreateEventRequest struct {
	EmployeeID   string          `json:"employee_id"`
	EventType    EventType       `json:"event_type"`
	PreviousData json.RawMessage `json:"previous_data,omitempty"`
	NewData      json.RawMessage `json:"new_data"`
	ActorID      *string         `json:"actor_id,omitempty"`
	Description  *string         `json:"description,omitempty"`
}

// Validate checks the request before it reaches the store.
func (r CreateEventRequest) Validate() error {
	if r.EmployeeID == "" {
		return fmt.Errorf("%w: employee_id is required", ErrInvalidInput)
	}
	if !r.EventType.Valid() {
		return fmt.Errorf("%w: unknown event_type %q", ErrInvalidInput, r.EventType)
	}
	if !isJSONObject(r.NewData) {
		return fmt.Errorf("%w: new_data must be a JSON object", ErrInvalidInput)
	}
	if len(r.PreviousData) > 0 && string(r.PreviousData) != "null" && !isJSONObject(r.PreviousData) {
		return fmt.Errorf("%w: previous_data must be a JSON object", ErrInvalidInput)
	}
	return nil
}

// EventFilter narrows ListEvents. Zero values mean no filter.
type EventFilter struct {
	EmployeeID string
	EventType  EventType
	Limit      int
}

func isJSONObject(raw json.RawMessage) bool {
	if len(raw) == 0 || !json.Valid(raw) {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}
