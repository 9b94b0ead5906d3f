package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syncops/eventhooks/internal/domain"
)

// Health states
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthFailing  = "failing"
)

// DefaultFailureThreshold is the consecutive failure count at which a
// webhook is reported as failing.
const DefaultFailureThreshold = 5

// HealthTracker keeps per-webhook consecutive-failure state in Redis.
// It only observes deliveries; it never blocks one.
//
// - Healthy: the last attempt succeeded (or none was made).
// - Degraded: between one and threshold-1 failures in a row.
// - Failing: threshold or more failures in a row.
type HealthTracker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	now              func() time.Time
}

// WebhookHealth is the current health of one webhook.
type WebhookHealth struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastStatus          int    `json:"last_status,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	LastAttemptAt       string `json:"last_attempt_at,omitempty"`
}

func NewHealthTracker(redisClient *redis.Client, threshold int, logger *slog.Logger) *HealthTracker {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	return &HealthTracker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: threshold,
		now:              time.Now,
	}
}

func healthKey(webhookID string) string {
	return fmt.Sprintf("wh:health:%s", webhookID)
}

// ObserveDelivery updates the webhook's health from one delivery outcome.
func (h *HealthTracker) ObserveDelivery(ctx context.Context, _ *domain.Event, wh *domain.Webhook, outcome domain.DeliveryOutcome) {
	if outcome.Succeeded() {
		h.RecordSuccess(ctx, wh.ID, outcome.StatusCode())
		return
	}
	h.RecordFailure(ctx, wh.ID, outcome.StatusCode(), outcome.Error)
}

// RecordSuccess resets the failure streak.
func (h *HealthTracker) RecordSuccess(ctx context.Context, webhookID string, status int) {
	key := healthKey(webhookID)

	prev, _ := h.redisClient.HGet(ctx, key, "consecutive_failures").Int()

	err := h.redisClient.HSet(ctx, key,
		"consecutive_failures", 0,
		"last_status", status,
		"last_error", "",
		"last_attempt_at", h.now().Unix(),
	).Err()
	if err != nil {
		h.logger.Error("failed to record webhook health", "error", err, "webhook_id", webhookID)
		return
	}

	if prev >= h.failureThreshold {
		h.logger.Info("webhook recovered",
			"webhook_id", webhookID,
			"previous_failures", prev,
		)
	}
}

// RecordFailure extends the failure streak. status is 0 when no response
// was received.
func (h *HealthTracker) RecordFailure(ctx context.Context, webhookID string, status int, errMsg string) {
	key := healthKey(webhookID)

	pipe := h.redisClient.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "consecutive_failures", 1)
	pipe.HSet(ctx, key,
		"last_status", status,
		"last_error", errMsg,
		"last_attempt_at", h.now().Unix(),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		h.logger.Error("failed to record webhook health", "error", err, "webhook_id", webhookID)
		return
	}

	if incr.Val() == int64(h.failureThreshold) {
		h.logger.Warn("webhook failing",
			"webhook_id", webhookID,
			"failures", incr.Val(),
			"threshold", h.failureThreshold,
		)
	}
}

// GetHealth returns the current health for a webhook. Unknown webhooks and
// Redis errors report healthy.
func (h *HealthTracker) GetHealth(ctx context.Context, webhookID string) WebhookHealth {
	data, err := h.redisClient.HGetAll(ctx, healthKey(webhookID)).Result()
	if err != nil || len(data) == 0 {
		return WebhookHealth{State: HealthHealthy}
	}

	failures, _ := strconv.Atoi(data["consecutive_failures"])
	status, _ := strconv.Atoi(data["last_status"])

	result := WebhookHealth{
		State:               h.stateFor(failures),
		ConsecutiveFailures: failures,
		LastStatus:          status,
		LastError:           data["last_error"],
	}

	if ts, _ := strconv.ParseInt(data["last_attempt_at"], 10, 64); ts > 0 {
		result.LastAttemptAt = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}

	return result
}

// Forget drops the stored health of a deleted webhook.
func (h *HealthTracker) Forget(ctx context.Context, webhookID string) {
	if err := h.redisClient.Del(ctx, healthKey(webhookID)).Err(); err != nil {
		h.logger.Error("failed to clear webhook health", "error", err, "webhook_id", webhookID)
	}
}

func (h *HealthTracker) stateFor(failures int) string {
	switch {
	case failures <= 0:
		return HealthHealthy
	case failures < h.failureThreshold:
		return HealthDegraded
	default:
		return HealthFailing
	}
}
