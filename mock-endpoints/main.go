package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var requestCount atomic.Int64

type receivedPayload struct {
	EventType string `json:"event_type"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Always returns 200
	r.Post("/webhook/success", func(w http.ResponseWriter, r *http.Request) {
		logRequest(logger, r, http.StatusOK)
		respond(w, http.StatusOK, map[string]string{"status": "received"})
	})

	// Delays 3 seconds, well inside the delivery timeout
	r.Post("/webhook/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
		logRequest(logger, r, http.StatusOK)
		respond(w, http.StatusOK, map[string]string{"status": "received (slow)"})
	})

	// Always returns 500
	r.Post("/webhook/fail", func(w http.ResponseWriter, r *http.Request) {
		logRequest(logger, r, http.StatusInternalServerError)
		respond(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	})

	// Outlives the default 10s delivery timeout
	r.Post("/webhook/timeout", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(15 * time.Second):
		case <-r.Context().Done():
		}
		logRequest(logger, r, http.StatusOK)
		respond(w, http.StatusOK, map[string]string{"status": "too late"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	logger.Info("mock endpoint server starting",
		"port", port,
		"routes", []string{
			"POST /webhook/success -> 200",
			"POST /webhook/slow -> 200 after 3s",
			"POST /webhook/fail -> 500",
			"POST /webhook/timeout -> no answer for 15s",
			"GET /stats",
		},
	)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func logRequest(logger *slog.Logger, r *http.Request, status int) {
	count := requestCount.Add(1)

	var payload receivedPayload
	body, _ := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	json.Unmarshal(body, &payload)

	logger.Info("webhook received",
		"request", count,
		"path", r.URL.Path,
		"status", status,
		"event_type", payload.EventType,
		"secret", truncate(r.Header.Get("X-Webhook-Secret"), 4),
		"bytes", len(body),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
