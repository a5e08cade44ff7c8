package scheduler

import "testing"

func TestPriorityQueueOrdersByLevel(t *testing.T) {
	pq := NewPriorityQueue(QueuePolicy{}, 3, nil)

	low := newTestPayload()
	high := newTestPayload()
	mid := newTestPayload()

	if err := pq.Enqueue(3, low); err != nil {
		t.Fatalf("enqueue level 3: %v", err)
	}
	if err := pq.Enqueue(1, high); err != nil {
		t.Fatalf("enqueue level 1: %v", err)
	}
	if err := pq.Enqueue(2, mid); err != nil {
		t.Fatalf("enqueue level 2: %v", err)
	}

	if pq.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", pq.Size())
	}

	order := []*Payload{}
	for pq.Size() > 0 {
		p, err := pq.Dequeue()
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		order = append(order, p)
	}
	if order[0] != high || order[1] != mid || order[2] != low {
		t.Fatalf("expected dequeue order high,mid,low by priority level")
	}
}

func TestPriorityQueueUnknownLevel(t *testing.T) {
	pq := NewPriorityQueue(QueuePolicy{}, 2, nil)
	if err := pq.Enqueue(5, newTestPayload()); err == nil {
		t.Fatalf("expected error enqueueing at an unconfigured level")
	}
}

func TestPriorityQueueSingleFlatLevel(t *testing.T) {
	pq := NewPriorityQueue(QueuePolicy{}, 0, nil)
	if err := pq.Enqueue(0, newTestPayload()); err != nil {
		t.Fatalf("enqueue level 0: %v", err)
	}
	if pq.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", pq.Size())
	}
}

func TestPriorityQueueCursorAdvanceAndInvalidation(t *testing.T) {
	pq := NewPriorityQueue(QueuePolicy{}, 2, nil)
	if err := pq.Enqueue(2, newTestPayload()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pq.ApplyPolicyAtCursor()
	if pq.atEnd() {
		t.Fatalf("cursor should be parked on the admitted candidate, not at end")
	}
	pq.AdvanceCursor()
	if pq.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", pq.PendingCount())
	}
	if !pq.IsCursorValid() {
		t.Fatalf("cursor should remain valid with no deadline set")
	}

	// An arrival at or before the level currently being scanned invalidates it.
	if err := pq.Enqueue(1, newTestPayload()); err != nil {
		t.Fatalf("enqueue higher priority: %v", err)
	}
	if pq.IsCursorValid() {
		t.Fatalf("cursor should be invalidated by a higher-priority arrival")
	}
}

func TestPriorityQueueReleaseRejectedPayloadsPerLevel(t *testing.T) {
	pq := NewPriorityQueue(QueuePolicy{}, 2, nil)
	groups := pq.ReleaseRejectedPayloads()
	if len(groups) != 2 {
		t.Fatalf("expected one group per level, got %d", len(groups))
	}
	for _, g := range groups {
		if len(g) != 0 {
			t.Fatalf("expected empty rejected groups with nothing rejected")
		}
	}
}
