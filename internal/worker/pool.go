package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/syncops/eventhooks/internal/domain"
)

// EventDispatcher runs the fan-out for one event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventID string) (*domain.DispatchResult, error)
}

// Pool manages a fixed number of worker goroutines that dispatch queued
// events.
type Pool struct {
	numWorkers int
	jobs       chan string
	dispatcher EventDispatcher
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, dispatcher EventDispatcher, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan string, numWorkers*2),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands an event id to the pool, blocking while all workers are busy
// and the buffer is full. It returns false if ctx ends first.
func (p *Pool) Submit(ctx context.Context, eventID string) bool {
	select {
	case p.jobs <- eventID:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the jobs channel and waits for all workers to drain it. No
// Submit may be in progress.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for eventID := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.dispatch(ctx, id, eventID)
		}
	}
}

func (p *Pool) dispatch(ctx context.Context, workerID int, eventID string) {
	res, err := p.dispatcher.Dispatch(ctx, eventID)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, domain.ErrEventNotFound) {
			level = slog.LevelWarn
		}
		p.logger.Log(ctx, level, "automatic dispatch failed",
			"worker", workerID,
			"event_id", eventID,
			"error", err,
		)
		return
	}

	p.logger.Debug("automatic dispatch done",
		"worker", workerID,
		"event_id", eventID,
		"attempted", res.Attempted,
		"failed", res.Failed,
	)
}
