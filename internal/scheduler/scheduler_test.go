package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/kunal/infer-scheduler/pkg/model"
)

// fakeRunner records every batch it's handed and completes each payload
// immediately with a fixed result.
type fakeRunner struct {
	mu      sync.Mutex
	batches []BatchHandoff
}

func (r *fakeRunner) Execute(batch BatchHandoff) {
	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.mu.Unlock()
	for _, p := range batch.Payloads {
		p.Sink.Complete("ok", nil)
	}
}

func (r *fakeRunner) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestSchedulerEnqueueDispatchesToRunner(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{MaxPreferredBatchSize: 4}, noopPeek, runner)
	s.Start()
	defer s.Stop()

	results := make(chan string, 1)
	req := &model.StaticRequest{Batch: 1}
	sink := CompletionSinkFunc(func(result any, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		results <- result.(string)
	})

	if err := s.Enqueue(0, req, sink); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case r := <-results:
		if r != "ok" {
			t.Fatalf("result = %q, want ok", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for dispatch")
	}
}

func TestSchedulerRejectsAtCapacity(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{
		MaxPreferredBatchSize: 1,
		DefaultPolicy:         QueuePolicy{MaxQueueSize: 1},
	}, noopPeek, runner)
	// Deliberately do not Start(): verifies admission-time rejection works
	// independent of the dispatcher draining the queue.

	ok := CompletionSinkFunc(func(any, error) {})
	if err := s.Enqueue(0, &model.StaticRequest{Batch: 1}, ok); err != nil {
		t.Fatalf("first enqueue should be admitted: %v", err)
	}
	if err := s.Enqueue(0, &model.StaticRequest{Batch: 1}, ok); err == nil {
		t.Fatalf("second enqueue should be rejected at capacity")
	}
}

func TestSchedulerStopDrainsBeforeExit(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{MaxPreferredBatchSize: 8}, noopPeek, runner)
	s.Start()

	done := make(chan struct{})
	sink := CompletionSinkFunc(func(any, error) { close(done) })
	if err := s.Enqueue(0, &model.StaticRequest{Batch: 1}, sink); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("payload never completed")
	}

	stats := s.Snapshot()
	if stats.TotalDequeued != 1 {
		t.Fatalf("TotalDequeued = %d, want 1", stats.TotalDequeued)
	}
}

func TestSchedulerPriorityOrderingAcrossLevels(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{
		PriorityLevels:        2,
		MaxPreferredBatchSize: 1,
	}, noopPeek, runner)

	var mu sync.Mutex
	var order []string

	lowDone := make(chan struct{})
	highDone := make(chan struct{})

	lowSink := CompletionSinkFunc(func(any, error) {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		close(lowDone)
	})
	highSink := CompletionSinkFunc(func(any, error) {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
		close(highDone)
	})

	if err := s.Enqueue(2, &model.StaticRequest{Batch: 1}, lowSink); err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	if err := s.Enqueue(1, &model.StaticRequest{Batch: 1}, highSink); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	s.Start()
	defer s.Stop()

	<-highDone
	<-lowDone

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "high" {
		t.Fatalf("expected high priority dispatched first, got %v", order)
	}
}

func TestSchedulerShouldDispatchEarly(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{
		MaxPreferredBatchSize: 100,
		BatcherDelayUS:        1_000_000,
		DefaultPolicy:         QueuePolicy{DefaultTimeoutUS: 10},
	}, noopPeek, runner)

	sink := CompletionSinkFunc(func(any, error) {})
	if err := s.Enqueue(0, &model.StaticRequest{Batch: 1}, sink); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Force the cursor to park on the candidate so ClosestDeadlineNS is set.
	s.mu.Lock()
	s.pq.ApplyPolicyAtCursor()
	if !s.pq.atEnd() {
		s.pq.AdvanceCursor()
	}
	s.mu.Unlock()

	waitFor(t, time.Second, s.ShouldDispatchEarly)
}
