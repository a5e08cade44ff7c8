package scheduler

import "sort"

// pendingCursor is the incremental scan state that lets batch assembly
// resume where it left off. It records how far into the priority-ordered
// concatenation of levels the current pending batch reaches, without
// re-scanning from the front on every new arrival.
type pendingCursor struct {
	levelIdx int // index into PriorityQueue.levels
	queueIdx int // position within levels[levelIdx]'s main++delayed

	closestDeadlineNS int64 // min non-zero deadline among admitted payloads
	oldestEnqueueNS   int64 // min QueueStart among admitted payloads
	pendingCount      int
	valid             bool
}

// PriorityQueue is an ordered collection of PolicyQueues keyed by priority
// level (lower numeric level = higher priority), plus the pending cursor
// that scans them. Guarded by one external mutex — not internally
// synchronized.
type PriorityQueue struct {
	levels []uint32 // sorted ascending: priority order
	queues map[uint32]*PolicyQueue
	size   int
	cursor pendingCursor
}

// NewPriorityQueue builds the configured levels. priorityLevels == 0 means
// a single flat level 0 using defaultPolicy; otherwise levels 1..=priorityLevels
// exist, each using overrides[level] if present, else defaultPolicy.
func NewPriorityQueue(defaultPolicy QueuePolicy, priorityLevels uint32, overrides map[uint32]QueuePolicy) *PriorityQueue {
	pq := &PriorityQueue{queues: make(map[uint32]*PolicyQueue)}

	if priorityLevels == 0 {
		pq.levels = []uint32{0}
		pq.queues[0] = NewPolicyQueue(defaultPolicy)
	} else {
		pq.levels = make([]uint32, 0, priorityLevels)
		for level := uint32(1); level <= priorityLevels; level++ {
			policy := defaultPolicy
			if override, ok := overrides[level]; ok {
				policy = override
			}
			pq.levels = append(pq.levels, level)
			pq.queues[level] = NewPolicyQueue(policy)
		}
		sort.Slice(pq.levels, func(i, j int) bool { return pq.levels[i] < pq.levels[j] })
	}

	pq.ResetCursor()
	return pq
}

// Size is the total count of admitted (non-rejected) payloads across all
// levels.
func (pq *PriorityQueue) Size() int { return pq.size }

// Enqueue delegates to the PolicyQueue at level. On success it applies the
// cursor invalidation rule: a new payload at or before the level the
// cursor is currently scanning may be admissible to the batch ahead of
// items already admitted, so the cursor is invalidated; an arrival
// strictly after the current scan level cannot displace anything already
// admitted and leaves the cursor untouched.
func (pq *PriorityQueue) Enqueue(level uint32, payload *Payload) error {
	q, ok := pq.queues[level]
	if !ok {
		return errUnknownPriorityLevel
	}
	if err := q.Enqueue(payload); err != nil {
		return err
	}
	pq.size++
	if pq.cursor.valid && level <= pq.levels[pq.cursor.levelIdx] {
		pq.cursor.valid = false
	}
	return nil
}

// Dequeue returns the next payload in priority order. Precondition:
// Size() > 0. Invalidates the cursor.
func (pq *PriorityQueue) Dequeue() (*Payload, error) {
	pq.cursor.valid = false
	for _, level := range pq.levels {
		q := pq.queues[level]
		if !q.Empty() {
			payload, err := q.Dequeue()
			if err != nil {
				return nil, err
			}
			pq.size--
			return payload, nil
		}
	}
	return nil, errEmptyQueue
}

// ReleaseRejectedPayloads collects each level's rejected FIFO, in priority
// order, including empty slices for levels with nothing rejected this
// cycle.
func (pq *PriorityQueue) ReleaseRejectedPayloads() [][]*Payload {
	res := make([][]*Payload, len(pq.levels))
	for i, level := range pq.levels {
		res[i] = pq.queues[level].ReleaseRejected()
	}
	return res
}

// IsCursorValid is true iff the cursor's valid flag is set and the closest
// deadline among admitted payloads has not yet elapsed — a valid cursor
// goes stale the instant that deadline passes.
func (pq *PriorityQueue) IsCursorValid() bool {
	if !pq.cursor.valid {
		return false
	}
	if pq.cursor.closestDeadlineNS == 0 {
		return true
	}
	return nowNanos() < pq.cursor.closestDeadlineNS
}

// ResetCursor parks the cursor at the first level with all counters clear.
func (pq *PriorityQueue) ResetCursor() {
	pq.cursor = pendingCursor{levelIdx: 0, queueIdx: 0, valid: true}
}

// ApplyPolicyAtCursor drives the cursor forward across levels whose
// current candidate is expired, migrating or rejecting as it goes, until
// it parks on a non-expired candidate or every remaining payload is
// already in the pending batch. Returns the accumulated rejected batch
// size for the caller to surface via CompletionSink.
func (pq *PriorityQueue) ApplyPolicyAtCursor() uint64 {
	var rejectedBatchSize, rejectedCount uint64

	for pq.cursor.levelIdx < len(pq.levels) {
		q := pq.queues[pq.levels[pq.cursor.levelIdx]]
		if !q.ApplyPolicy(pq.cursor.queueIdx, &rejectedCount, &rejectedBatchSize) {
			if uint64(pq.size) > uint64(pq.cursor.pendingCount)+rejectedCount {
				pq.cursor.levelIdx++
				pq.cursor.queueIdx = 0
				continue
			}
		}
		break
	}

	// Structural invariant: the cursor must never run off the end of
	// levels — if size() truthfully accounts for every payload across
	// every level, running past the last level while still owed more than
	// pending+rejected is impossible. A panic here means that invariant
	// was violated elsewhere, not a runtime condition callers should
	// handle.
	if pq.cursor.levelIdx >= len(pq.levels) {
		panic("scheduler: cursor advanced past the last priority level")
	}

	pq.size -= int(rejectedCount)
	return rejectedBatchSize
}

// atEnd reports whether every remaining payload is already admitted to
// the pending batch (i.e. ApplyPolicyAtCursor had nowhere left to go).
func (pq *PriorityQueue) atEnd() bool {
	q := pq.queues[pq.levels[pq.cursor.levelIdx]]
	return pq.cursor.queueIdx >= q.Size()
}

// CurrentCandidate returns the payload the cursor is currently parked on.
// Only valid to call when !atEnd().
func (pq *PriorityQueue) CurrentCandidate() *Payload {
	q := pq.queues[pq.levels[pq.cursor.levelIdx]]
	return q.At(pq.cursor.queueIdx)
}

func minNonZero(a, b int64) int64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// AdvanceCursor admits the current candidate to the pending batch.
// Precondition: pendingCount < size and the cursor is parked on a valid,
// non-expired candidate (i.e. !atEnd()).
func (pq *PriorityQueue) AdvanceCursor() {
	if pq.cursor.pendingCount >= pq.size {
		return
	}

	q := pq.queues[pq.levels[pq.cursor.levelIdx]]
	timeoutNS := q.TimeoutAt(pq.cursor.queueIdx)
	pq.cursor.closestDeadlineNS = minNonZero(pq.cursor.closestDeadlineNS, timeoutNS)

	payload := q.At(pq.cursor.queueIdx)
	queueStartNS := payload.Timers.At(QueueStart)
	pq.cursor.oldestEnqueueNS = minNonZero(pq.cursor.oldestEnqueueNS, queueStartNS)

	pq.cursor.queueIdx++
	pq.cursor.pendingCount++
}

// PendingCount, ClosestDeadlineNS and OldestEnqueueNS expose the cursor's
// bookkeeping to the PendingBatch builder and to callers that want to
// decide on early dispatch.
func (pq *PriorityQueue) PendingCount() int        { return pq.cursor.pendingCount }
func (pq *PriorityQueue) ClosestDeadlineNS() int64 { return pq.cursor.closestDeadlineNS }
func (pq *PriorityQueue) OldestEnqueueNS() int64   { return pq.cursor.oldestEnqueueNS }
