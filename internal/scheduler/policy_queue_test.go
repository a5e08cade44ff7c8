package scheduler

import (
	"testing"
	"time"

	"github.com/kunal/infer-scheduler/pkg/model"
)

func newTestPayload() *Payload {
	return NewPayload(&model.StaticRequest{Batch: 1}, CompletionSinkFunc(func(any, error) {}))
}

func TestPolicyQueueFIFOOrder(t *testing.T) {
	q := NewPolicyQueue(QueuePolicy{})
	first := newTestPayload()
	second := newTestPayload()

	if err := q.Enqueue(first); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if err := q.Enqueue(second); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	if q.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", q.Size())
	}

	got, err := q.Dequeue()
	if err != nil || got != first {
		t.Fatalf("expected first payload out first, err=%v", err)
	}
	got, err = q.Dequeue()
	if err != nil || got != second {
		t.Fatalf("expected second payload out second, err=%v", err)
	}
	if !q.Empty() {
		t.Fatalf("expected queue empty after draining")
	}
}

func TestPolicyQueueDequeueEmpty(t *testing.T) {
	q := NewPolicyQueue(QueuePolicy{})
	if _, err := q.Dequeue(); err == nil {
		t.Fatalf("expected error dequeuing empty queue")
	}
}

func TestPolicyQueueMaxQueueSize(t *testing.T) {
	q := NewPolicyQueue(QueuePolicy{MaxQueueSize: 1})
	if err := q.Enqueue(newTestPayload()); err != nil {
		t.Fatalf("first enqueue should succeed: %v", err)
	}
	if err := q.Enqueue(newTestPayload()); err == nil {
		t.Fatalf("second enqueue should fail at capacity")
	}
}

func TestPolicyQueueApplyPolicyReject(t *testing.T) {
	q := NewPolicyQueue(QueuePolicy{DefaultTimeoutUS: 1, TimeoutAction: ActionReject})
	if err := q.Enqueue(newTestPayload()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	time.Sleep(time.Millisecond)

	var rejectedCount, rejectedSize uint64
	q.ApplyPolicy(0, &rejectedCount, &rejectedSize)

	if rejectedCount != 1 {
		t.Fatalf("rejectedCount = %d, want 1", rejectedCount)
	}
	rejected := q.ReleaseRejected()
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejected payload, got %d", len(rejected))
	}
	if q.Size() != 0 {
		t.Fatalf("expired entry should be removed from main, Size() = %d", q.Size())
	}
}

func TestPolicyQueueApplyPolicyDelay(t *testing.T) {
	q := NewPolicyQueue(QueuePolicy{DefaultTimeoutUS: 1, TimeoutAction: ActionDelay})
	if err := q.Enqueue(newTestPayload()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	time.Sleep(time.Millisecond)

	var rejectedCount, rejectedSize uint64
	q.ApplyPolicy(0, &rejectedCount, &rejectedSize)

	if rejectedCount != 0 {
		t.Fatalf("expected no rejections under ActionDelay, got %d", rejectedCount)
	}
	// Size() still counts delayed payloads as admitted.
	if q.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 (moved to delayed, still admitted)", q.Size())
	}
	got, err := q.Dequeue()
	if err != nil {
		t.Fatalf("dequeue from delayed: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a payload out of delayed")
	}
}

func TestPolicyQueueTimeoutOverrideNarrowsOnly(t *testing.T) {
	q := NewPolicyQueue(QueuePolicy{
		DefaultTimeoutUS:     1_000_000,
		AllowTimeoutOverride: true,
	})
	// A request asking for a longer timeout than the default must not widen it.
	wide := NewPayload(&model.StaticRequest{Batch: 1, TimeoutMic: 10_000_000}, CompletionSinkFunc(func(any, error) {}))
	if err := q.Enqueue(wide); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := q.TimeoutAt(0); got-nowNanos() > 2_000_000*int64(time.Microsecond) {
		t.Fatalf("override should not widen the deadline beyond the default, got delta %d", got-nowNanos())
	}
}
