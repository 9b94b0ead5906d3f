package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/syncops/eventhooks/internal/domain"
)

// SecretHeader carries a webhook's shared secret to the receiver.
const SecretHeader = "X-Webhook-Secret"

// DefaultTimeout bounds one delivery when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Deliverer POSTs event payloads to webhook URLs and classifies the result.
type Deliverer struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDeliverer creates a deliverer whose requests are bounded by timeout.
func NewDeliverer(timeout time.Duration, logger *slog.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Deliverer{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Deliver sends payload to the webhook. A response of any status yields a
// status outcome; anything that prevents a response (DNS, refused
// connection, timeout) yields an error outcome.
func (d *Deliverer) Deliver(ctx context.Context, wh *domain.Webhook, payload []byte) domain.DeliveryOutcome {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.TransportOutcome(wh.ID, fmt.Errorf("creating request: %w", err))
	}
	setHeaders(req, wh)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Debug("delivery transport error",
			"webhook_id", wh.ID,
			"error", err,
			"response_time_ms", time.Since(start).Milliseconds(),
		)
		return domain.TransportOutcome(wh.ID, err)
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	d.logger.Debug("delivery response",
		"webhook_id", wh.ID,
		"status_code", resp.StatusCode,
		"response_time_ms", time.Since(start).Milliseconds(),
	)
	return domain.ResponseOutcome(wh.ID, resp.StatusCode)
}

// setHeaders applies Content-Type, then the webhook's custom headers, then
// the secret. Later writes win.
func setHeaders(req *http.Request, wh *domain.Webhook) {
	req.Header.Set("Content-Type", "application/json")
	for name, value := range wh.Headers {
		req.Header.Set(name, value)
	}
	if wh.SecretKey != "" {
		req.Header.Set(SecretHeader, wh.SecretKey)
	}
}
