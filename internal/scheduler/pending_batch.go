package scheduler

import "sync"

// BatchHandoff is what the dispatcher hands to the runner once a pending
// batch is ready: the payloads themselves plus the cursor's summary
// bookkeeping, which the runner's own early-dispatch policy can use.
type BatchHandoff struct {
	Payloads          []*Payload
	ClosestDeadlineNS int64
	OldestEnqueueNS   int64
}

// buildPendingBatch grows the priority queue's pending batch up to
// targetSize, migrating/rejecting expired entries and enforcing shape
// compatibility along the way. mu must be held on entry and is held again
// on return; it is released only around peek calls, which may block on
// device I/O — the caller must not assume mu was held continuously.
//
// Returns the payload groups rejected this cycle, one slice per priority
// level, for the caller to complete with UNAVAILABLE outside the lock.
func buildPendingBatch(mu *sync.Mutex, pq *PriorityQueue, targetSize int, runnerID int64, enforceEqual map[string]bool, peek PeekFunc) [][]*Payload {
	var pendingShapes PendingShapes

	for pq.PendingCount() < targetSize {
		if !pq.IsCursorValid() {
			pq.ResetCursor()
			pendingShapes = nil
		}

		pq.ApplyPolicyAtCursor()
		if pq.atEnd() {
			break
		}

		candidate := pq.CurrentCandidate()

		if pq.PendingCount() == 0 {
			mu.Unlock()
			shapes, err := InitPendingShape(runnerID, candidate, enforceEqual, peek)
			mu.Lock()

			if !pq.IsCursorValid() {
				// A higher-priority arrival (or an elapsed deadline)
				// invalidated everything while we were peeking; restart
				// the scan from scratch.
				continue
			}
			if err != nil {
				// First candidate's own shape tensor couldn't be read:
				// nothing else in this batch to fall back on, so it is
				// rejected outright rather than silently skipped.
				rejected, derr := pq.Dequeue()
				if derr == nil {
					rejected.Reject(errShapeTensorPeek(err))
				}
				continue
			}
			pendingShapes = shapes
		} else {
			mu.Unlock()
			ok := CompareWithPending(runnerID, candidate, pendingShapes, peek)
			mu.Lock()

			if !pq.IsCursorValid() {
				continue
			}
			if !ok {
				// Candidate cannot join this batch; it stays in place
				// for a future one.
				break
			}
		}

		pq.AdvanceCursor()
	}

	return pq.ReleaseRejectedPayloads()
}
