package worker

import (
	"context"
	"log/slog"
	"time"
)

// Queue hands out queued event ids, each to exactly one caller.
type Queue interface {
	Claim(ctx context.Context, limit int64) ([]string, error)
	Enqueue(ctx context.Context, eventID string) error
}

// Poller continuously claims event ids from the trigger queue and sends
// them to the worker pool.
type Poller struct {
	queue        Queue
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

// NewPoller creates a poller that feeds pool from queue.
func NewPoller(queue Queue, pool *Pool, logger *slog.Logger) *Poller {
	return &Poller{
		queue:        queue,
		pool:         pool,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
	}
}

// Start begins the polling loop. It runs until the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("dispatch poller started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("dispatch poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	ids, err := p.queue.Claim(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to poll dispatch queue", "error", err)
	}

	for i, id := range ids {
		if !p.pool.Submit(ctx, id) {
			p.requeue(ids[i:])
			return
		}
	}
}

// requeue puts back ids that were claimed but never handed to a worker.
func (p *Poller) requeue(ids []string) {
	ctx := context.Background()
	for _, id := range ids {
		if err := p.queue.Enqueue(ctx, id); err != nil {
			p.logger.Error("failed to requeue event", "event_id", id, "error", err)
		}
	}
}
