package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/syncops/eventhooks/internal/domain"
	"github.com/syncops/eventhooks/internal/engine"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, eventID string) (*domain.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[eventID]++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DispatchResult{EventID: eventID}, nil
}

func (f *fakeDispatcher) count(eventID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[eventID]
}

func (f *fakeDispatcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func TestPool_DispatchesSubmittedEvents(t *testing.T) {
	fd := &fakeDispatcher{}
	pool := NewPool(3, fd, testLogger())
	pool.Start(context.Background())

	for _, id := range []string{"evt-1", "evt-2", "evt-3", "evt-4"} {
		pool.Submit(context.Background(), id)
	}
	pool.Stop()

	if fd.total() != 4 {
		t.Errorf("expected 4 dispatches, got %d", fd.total())
	}
	if fd.count("evt-3") != 1 {
		t.Errorf("evt-3 dispatched %d times", fd.count("evt-3"))
	}
}

func TestPool_DispatchErrorsDoNotStopWorkers(t *testing.T) {
	fd := &fakeDispatcher{err: errors.New("database down")}
	pool := NewPool(1, fd, testLogger())
	pool.Start(context.Background())

	pool.Submit(context.Background(), "evt-1")
	pool.Submit(context.Background(), "evt-2")
	pool.Stop()

	if fd.total() != 2 {
		t.Errorf("expected both events attempted, got %d", fd.total())
	}
}

func TestPoller_FeedsQueuedEventsToPool(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	queue := engine.NewTriggerQueue(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"evt-1", "evt-2"} {
		if err := queue.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	fd := &fakeDispatcher{}
	pool := NewPool(2, fd, testLogger())
	pool.Start(ctx)
	go NewPoller(queue, pool, testLogger()).Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for fd.total() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	if fd.count("evt-1") != 1 || fd.count("evt-2") != 1 {
		t.Errorf("expected each event dispatched once, got %d/%d", fd.count("evt-1"), fd.count("evt-2"))
	}
	if depth, _ := queue.Depth(ctx); depth != 0 {
		t.Errorf("queue should be drained, depth = %d", depth)
	}
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	pool := NewPool(1, &fakeDispatcher{}, testLogger())

	// No workers started: fill the buffer, then the next submit must give up.
	for i := 0; i < 2; i++ {
		if !pool.Submit(context.Background(), "evt-fill") {
			t.Fatal("buffered submit should succeed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if pool.Submit(ctx, "evt-late") {
		t.Error("submit should fail once the context ends")
	}
}

func TestPoller_RequeuesUnsubmittedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	queue := engine.NewTriggerQueue(client)
	queue.Enqueue(context.Background(), "evt-1")
	queue.Enqueue(context.Background(), "evt-2")

	// No workers are running and the buffer is full, so every submit
	// waits until the poll context times out.
	pool := NewPool(1, &fakeDispatcher{}, testLogger())
	pool.Submit(context.Background(), "evt-fill-1")
	pool.Submit(context.Background(), "evt-fill-2")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	NewPoller(queue, pool, testLogger()).poll(ctx)

	if depth, _ := queue.Depth(context.Background()); depth != 2 {
		t.Errorf("claimed events should be requeued, depth = %d", depth)
	}
}
