package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syncops/eventhooks/internal/domain"
)

var feedTime = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)
	hub.now = func() time.Time { return feedTime }

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) (DeliveryEvent, map[string]any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt DeliveryEvent
	var raw map[string]any
	if err := json.Unmarshal(msg, &evt); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	json.Unmarshal(msg, &raw)
	return evt, raw
}

func TestHub_TracksConnections(t *testing.T) {
	hub, _ := newTestHub(t)
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("expected no clients before dialing, got %d", n)
	}

	conn := dial(t, hub)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_ObserveDelivery(t *testing.T) {
	evt := &domain.Event{ID: "evt-9", EventType: domain.EventTermination}
	wh := &domain.Webhook{ID: "wh-9", URL: "https://rh.example.com/hook"}

	tests := []struct {
		name       string
		outcome    domain.DeliveryOutcome
		wantType   string
		wantStatus int
		wantError  string
	}{
		{
			name:       "accepted",
			outcome:    domain.ResponseOutcome("wh-9", 202),
			wantType:   TypeDeliverySuccess,
			wantStatus: 202,
		},
		{
			name:       "rejected",
			outcome:    domain.ResponseOutcome("wh-9", 502),
			wantType:   TypeDeliveryFailed,
			wantStatus: 502,
		},
		{
			name:      "unreachable",
			outcome:   domain.TransportOutcome("wh-9", errors.New("dial tcp: connection refused")),
			wantType:  TypeDeliveryFailed,
			wantError: "dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, _ := newTestHub(t)
			conn := dial(t, hub)
			waitForClients(t, hub, 1)

			hub.ObserveDelivery(context.Background(), evt, wh, tt.outcome)
			got, raw := readEvent(t, conn)

			if got.Type != tt.wantType {
				t.Errorf("type = %q, want %q", got.Type, tt.wantType)
			}
			if got.EventID != "evt-9" || got.EventType != "demissao" {
				t.Errorf("event fields = %q/%q", got.EventID, got.EventType)
			}
			if got.WebhookID != "wh-9" || got.WebhookURL != wh.URL {
				t.Errorf("webhook fields = %q/%q", got.WebhookID, got.WebhookURL)
			}
			if !got.Timestamp.Equal(feedTime) {
				t.Errorf("timestamp = %v, want %v", got.Timestamp, feedTime)
			}
			if got.Error != tt.wantError {
				t.Errorf("error = %q, want %q", got.Error, tt.wantError)
			}

			if tt.wantStatus == 0 {
				if _, ok := raw["status_code"]; ok {
					t.Errorf("status_code should be omitted without a response: %v", raw)
				}
			} else if got.StatusCode == nil || *got.StatusCode != tt.wantStatus {
				t.Errorf("status_code = %v, want %d", got.StatusCode, tt.wantStatus)
			}
			if tt.wantError == "" {
				if _, ok := raw["error"]; ok {
					t.Errorf("error should be omitted when a response arrived: %v", raw)
				}
			}
		})
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub, _ := newTestHub(t)
	a, b := dial(t, hub), dial(t, hub)
	waitForClients(t, hub, 2)

	hub.Broadcast(DeliveryEvent{Type: TypeDeliverySuccess, EventID: "evt-all", WebhookID: "wh-1"})

	for i, conn := range []*websocket.Conn{a, b} {
		got, _ := readEvent(t, conn)
		if got.EventID != "evt-all" || got.WebhookID != "wh-1" {
			t.Errorf("client %d got %+v", i+1, got)
		}
	}
}

func TestHub_ShutdownDisconnectsClients(t *testing.T) {
	hub, cancel := newTestHub(t)
	conn := dial(t, hub)
	waitForClients(t, hub, 1)

	cancel()
	waitForClients(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed after shutdown")
	}
}
