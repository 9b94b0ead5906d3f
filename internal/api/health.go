package api

import (
	"context"
	"net/http"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services,omitempty"`
}

// HealthHandler returns the health check handler. Each named pinger is
// checked; any failure reports the service as degraded with a 503.
func HealthHandler(pingers map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "healthy",
			Version: "1.0.0",
		}
		status := http.StatusOK

		if len(pingers) > 0 {
			resp.Services = make(map[string]string, len(pingers))
			for name, p := range pingers {
				if err := p.Ping(r.Context()); err != nil {
					resp.Services[name] = "down"
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Services[name] = "up"
			}
		}

		respondJSON(w, status, resp)
	}
}
