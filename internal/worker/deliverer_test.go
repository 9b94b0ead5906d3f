package worker

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/syncops/eventhooks/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDeliver_Success(t *testing.T) {
	var gotBody string
	var gotHeaders http.Header
	var gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotHeaders = r.Header.Clone()
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDeliverer(5*time.Second, testLogger())
	wh := &domain.Webhook{ID: "wh-1", URL: server.URL, SecretKey: "s3cret"}

	out := d.Deliver(context.Background(), wh, []byte(`{"event_type":"admissao"}`))

	if !out.Succeeded() || out.StatusCode() != 200 || out.Error != "" {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.SubscriptionID != "wh-1" {
		t.Errorf("subscription_id = %q", out.SubscriptionID)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotBody != `{"event_type":"admissao"}` {
		t.Errorf("body = %s", gotBody)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get(SecretHeader) != "s3cret" {
		t.Errorf("%s = %q", SecretHeader, gotHeaders.Get(SecretHeader))
	}
}

func TestDeliver_HeaderPrecedence(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDeliverer(5*time.Second, testLogger())
	wh := &domain.Webhook{
		ID:        "wh-1",
		URL:       server.URL,
		SecretKey: "real-secret",
		Headers: map[string]string{
			"X-Webhook-Secret": "spoofed",
			"Authorization":    "Bearer abc",
		},
	}

	d.Deliver(context.Background(), wh, []byte(`{}`))

	if got := gotHeaders.Get(SecretHeader); got != "real-secret" {
		t.Errorf("secret header should win over custom header, got %q", got)
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("custom header not sent, got %q", got)
	}
}

func TestDeliver_NoSecretHeaderWithoutSecret(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
	}))
	defer server.Close()

	d := NewDeliverer(5*time.Second, testLogger())
	d.Deliver(context.Background(), &domain.Webhook{ID: "wh-1", URL: server.URL}, []byte(`{}`))

	if _, ok := gotHeaders[SecretHeader]; ok {
		t.Errorf("%s should be absent when no secret is set", SecretHeader)
	}
}

func TestDeliver_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	d := NewDeliverer(5*time.Second, testLogger())
	out := d.Deliver(context.Background(), &domain.Webhook{ID: "wh-1", URL: server.URL}, []byte(`{}`))

	if out.Succeeded() {
		t.Error("500 should not count as success")
	}
	if out.StatusCode() != 500 {
		t.Errorf("status = %d, want 500", out.StatusCode())
	}
	if out.Error != "" {
		t.Errorf("a response should not carry an error message, got %q", out.Error)
	}
}

func TestDeliver_Redirect3xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	d := NewDeliverer(5*time.Second, testLogger())
	out := d.Deliver(context.Background(), &domain.Webhook{ID: "wh-1", URL: server.URL}, []byte(`{}`))

	if out.Succeeded() || out.StatusCode() != 304 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestDeliver_Unreachable(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	d := NewDeliverer(5*time.Second, testLogger())
	out := d.Deliver(context.Background(), &domain.Webhook{ID: "wh-1", URL: "http://" + addr + "/hook"}, []byte(`{}`))

	if out.Status != nil || out.Success != nil {
		t.Errorf("transport failure should carry no status, got %+v", out)
	}
	if out.Error == "" {
		t.Error("transport failure should carry an error message")
	}
}

func TestDeliver_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	d := NewDeliverer(100*time.Millisecond, testLogger())

	start := time.Now()
	out := d.Deliver(context.Background(), &domain.Webhook{ID: "wh-1", URL: server.URL}, []byte(`{}`))

	if out.Error == "" || out.Status != nil {
		t.Errorf("timeout should be a transport failure, got %+v", out)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("delivery took %v, timeout not enforced", elapsed)
	}
}

func TestNewDeliverer_DefaultTimeout(t *testing.T) {
	d := NewDeliverer(0, testLogger())
	if d.httpClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", d.httpClient.Timeout, DefaultTimeout)
	}
}
