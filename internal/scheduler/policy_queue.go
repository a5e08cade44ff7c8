package scheduler

// TimeoutAction selects what happens to a payload whose deadline has
// elapsed while still sitting in main: REJECT completes it with an error,
// DELAY moves it to the level's secondary FIFO to run without further FIFO
// guarantees.
type TimeoutAction int

const (
	ActionReject TimeoutAction = iota
	ActionDelay
)

// QueuePolicy configures one priority level.
type QueuePolicy struct {
	// MaxQueueSize caps admitted (main+delayed) payloads; 0 = unbounded.
	MaxQueueSize uint64
	// DefaultTimeoutUS is the deadline applied to every enqueued request
	// unless AllowTimeoutOverride lets the request shorten it; 0 = no
	// deadline.
	DefaultTimeoutUS uint64
	// AllowTimeoutOverride lets a request's own (non-zero, smaller)
	// timeout narrow — never widen — the effective deadline.
	AllowTimeoutOverride bool
	TimeoutAction        TimeoutAction
}

// mainEntry pairs a payload with its absolute deadline (0 = none), kept
// together so the count of payloads always matches the count of deadlines
// by construction instead of by two parallel slices staying in lockstep.
type mainEntry struct {
	payload    *Payload
	deadlineNS int64
}

// PolicyQueue is one priority level: a main FIFO, a delayed FIFO for
// payloads whose deadline elapsed under ActionDelay, and a rejected FIFO
// for payloads whose deadline elapsed under ActionReject. Not internally
// synchronized — the owning PriorityQueue and Scheduler guard it with one
// mutex.
type PolicyQueue struct {
	policy   QueuePolicy
	main     []mainEntry
	delayed  []*Payload
	rejected []*Payload
}

func NewPolicyQueue(policy QueuePolicy) *PolicyQueue {
	return &PolicyQueue{policy: policy}
}

// Size is the count of admitted, non-rejected payloads at this level.
func (q *PolicyQueue) Size() int {
	return len(q.main) + len(q.delayed)
}

// Empty reports whether there is anything left to dequeue at this level.
func (q *PolicyQueue) Empty() bool {
	return q.Size() == 0
}

// Enqueue appends payload to main, computing its effective deadline from
// the level's policy and (optionally) the request's own override.
func (q *PolicyQueue) Enqueue(payload *Payload) error {
	if q.policy.MaxQueueSize != 0 && uint64(q.Size()) >= q.policy.MaxQueueSize {
		return errExceedsMaxQueueSize()
	}

	timeoutUS := q.policy.DefaultTimeoutUS
	if q.policy.AllowTimeoutOverride {
		if override := payload.Request.TimeoutUS(); override != 0 && override < timeoutUS {
			timeoutUS = override
		}
	}

	var deadlineNS int64
	if timeoutUS != 0 {
		deadlineNS = nowNanos() + int64(timeoutUS)*1000
	}

	q.main = append(q.main, mainEntry{payload: payload, deadlineNS: deadlineNS})
	return nil
}

// Dequeue takes from the front of main if non-empty, otherwise from the
// front of delayed. Precondition: !Empty().
func (q *PolicyQueue) Dequeue() (*Payload, error) {
	if len(q.main) > 0 {
		entry := q.main[0]
		q.main = q.main[1:]
		return entry.payload, nil
	}
	if len(q.delayed) > 0 {
		payload := q.delayed[0]
		q.delayed = q.delayed[1:]
		return payload, nil
	}
	return nil, errEmptyQueue
}

// ApplyPolicy walks main starting at idx, moving every entry whose deadline
// has elapsed to delayed or rejected per the level's timeout action, and
// erasing it from main. It stops at the first unexpired entry (returns
// true), or once main is exhausted, in which case it reports whether idx
// is still a valid position once reinterpreted as an offset into delayed.
func (q *PolicyQueue) ApplyPolicy(idx int, rejectedCount, rejectedBatchSize *uint64) bool {
	now := nowNanos()
	for idx < len(q.main) {
		entry := q.main[idx]
		if entry.deadlineNS == 0 || now <= entry.deadlineNS {
			return true
		}
		switch q.policy.TimeoutAction {
		case ActionDelay:
			q.delayed = append(q.delayed, entry.payload)
		default: // ActionReject
			q.rejected = append(q.rejected, entry.payload)
			*rejectedCount++
			*rejectedBatchSize += entry.payload.Request.BatchSize()
		}
		// O(n) erase: a list/tombstone scheme would make this O(1) but
		// would give up the direct index semantics At/TimeoutAt rely on.
		q.main = append(q.main[:idx], q.main[idx+1:]...)
	}
	return (idx - len(q.main)) < len(q.delayed)
}

// At indexes into the logical concatenation main++delayed.
func (q *PolicyQueue) At(idx int) *Payload {
	if idx < len(q.main) {
		return q.main[idx].payload
	}
	return q.delayed[idx-len(q.main)]
}

// TimeoutAt returns the absolute deadline for idx, 0 if idx falls in the
// delayed segment (its deadline already fired once; no further policy
// action applies to it).
func (q *PolicyQueue) TimeoutAt(idx int) int64 {
	if idx < len(q.main) {
		return q.main[idx].deadlineNS
	}
	return 0
}

// ReleaseRejected swaps out and returns the rejected FIFO.
func (q *PolicyQueue) ReleaseRejected() []*Payload {
	rejected := q.rejected
	q.rejected = nil
	return rejected
}
