package scheduler

import (
	"sync"
	"time"

	"github.com/kunal/infer-scheduler/pkg/model"
)

// RunnerHandoff is the collaborator the dispatcher hands finished batches
// to. Execute should run the batch and invoke each payload's
// CompletionSink itself; the scheduler's job ends at handoff.
type RunnerHandoff interface {
	Execute(batch BatchHandoff)
}

// Config bundles the per-model knobs the scheduler needs beyond the raw
// priority-level policy table: the shape-equality map Peek needs to
// enforce, the preferred batch size, and the early-dispatch delay budget.
type Config struct {
	PriorityLevels        uint32
	DefaultPolicy         QueuePolicy
	PolicyOverrides       map[uint32]QueuePolicy
	MaxPreferredBatchSize uint64
	// BatcherDelayUS: if the closest deadline in the candidate batch is
	// within this many microseconds, dispatch early instead of waiting
	// for MaxPreferredBatchSize to fill.
	BatcherDelayUS    uint64
	EnforceEqualShape map[string]bool
	RunnerID          int64
}

// Scheduler is the front-end: thread-safe enqueue, a single dispatcher
// goroutine woken by a condition variable, and handoff of assembled
// batches to the runner. One Scheduler exists per model.
type Scheduler struct {
	cfg    Config
	pq     *PriorityQueue
	peek   PeekFunc
	runner RunnerHandoff

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool
	wg      sync.WaitGroup

	TotalEnqueued uint64
	TotalDequeued uint64
	TotalRejected uint64
}

// New creates a Scheduler for one model. peek and runner are its external
// collaborators.
func New(cfg Config, peek PeekFunc, runner RunnerHandoff) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		pq:     NewPriorityQueue(cfg.DefaultPolicy, cfg.PriorityLevels, cfg.PolicyOverrides),
		peek:   peek,
		runner: runner,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start begins the dispatcher loop in a background goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.dispatchLoop()
}

// Stop signals the dispatcher to exit once it next wakes and waits for it
// to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Enqueue admits req at priority level into the scheduler, thread-safe,
// and wakes the dispatcher. Returns an UNAVAILABLE status error if the
// level is at capacity.
func (s *Scheduler) Enqueue(level uint32, req model.Request, sink CompletionSink) error {
	payload := NewPayload(req, sink)

	s.mu.Lock()
	err := s.pq.Enqueue(level, payload)
	if err == nil {
		s.TotalEnqueued++
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	return err
}

// Stats is a point-in-time snapshot of scheduler pressure, used by the
// model registry's poller and the dashboard feed.
type Stats struct {
	Size              int
	TotalEnqueued     uint64
	TotalDequeued     uint64
	TotalRejected     uint64
	ClosestDeadlineNS int64
	OldestEnqueueNS   int64
}

// Snapshot reports current queue pressure without disturbing the cursor.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Size:              s.pq.Size(),
		TotalEnqueued:     s.TotalEnqueued,
		TotalDequeued:     s.TotalDequeued,
		TotalRejected:     s.TotalRejected,
		ClosestDeadlineNS: s.pq.cursor.closestDeadlineNS,
		OldestEnqueueNS:   s.pq.cursor.oldestEnqueueNS,
	}
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	s.mu.Lock()
	for {
		for s.pq.Size() == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped && s.pq.Size() == 0 {
			s.mu.Unlock()
			return
		}

		rejectedGroups, batch, closest, oldest := s.collectBatch()

		s.mu.Unlock()

		for _, group := range rejectedGroups {
			for _, payload := range group {
				payload.Reject(errDeadlineExpired())
			}
		}
		s.mu.Lock()
		for _, group := range rejectedGroups {
			s.TotalRejected += uint64(len(group))
		}
		s.mu.Unlock()

		if len(batch) > 0 {
			s.runner.Execute(BatchHandoff{Payloads: batch, ClosestDeadlineNS: closest, OldestEnqueueNS: oldest})
		}

		s.mu.Lock()
	}
}

// collectBatch grows the pending batch and, unless it is already full or
// past its early-dispatch budget, keeps waiting for more arrivals (growing
// the batch after each wake-up) until the wait window closes, then flushes
// whatever has accumulated: a single bounded window per dispatch cycle,
// not a per-request timeout.
// mu must be held on entry and is held again on return.
func (s *Scheduler) collectBatch() (rejectedGroups [][]*Payload, batch []*Payload, closest, oldest int64) {
	target := int(s.cfg.MaxPreferredBatchSize)
	if target <= 0 {
		target = 1
	}

	rejectedGroups = append(rejectedGroups, buildPendingBatch(&s.mu, s.pq, target, s.cfg.RunnerID, s.cfg.EnforceEqualShape, s.peek)...)

	deadline := time.Now().Add(s.waitWindow())
	for s.pq.PendingCount() < target && !s.stopped && !s.shouldDispatchEarlyLocked() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		s.waitForMore(remaining)
		rejectedGroups = append(rejectedGroups, buildPendingBatch(&s.mu, s.pq, target, s.cfg.RunnerID, s.cfg.EnforceEqualShape, s.peek)...)
	}

	pendingCount := s.pq.PendingCount()
	if pendingCount > 0 {
		batch = make([]*Payload, 0, pendingCount)
		for i := 0; i < pendingCount; i++ {
			payload, err := s.pq.Dequeue()
			if err != nil {
				break
			}
			batch = append(batch, payload)
		}
		s.TotalDequeued += uint64(len(batch))
	}
	closest, oldest = s.pq.cursor.closestDeadlineNS, s.pq.cursor.oldestEnqueueNS
	return
}

// waitWindow bounds the total time collectBatch allows the pending batch
// to grow: BatcherDelayUS (or a short default if unset), shortened further
// by the time left on the closest deadline already in the batch.
func (s *Scheduler) waitWindow() time.Duration {
	wait := time.Duration(s.cfg.BatcherDelayUS) * time.Microsecond
	if wait <= 0 {
		wait = 10 * time.Millisecond
	}
	if closest := s.pq.cursor.closestDeadlineNS; closest > 0 {
		if remaining := time.Duration(closest - nowNanos()); remaining < wait {
			wait = remaining
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// waitForMore waits on cond for timeout, waking itself via a timer if no
// one else broadcasts first. Called with mu held, as sync.Cond requires.
func (s *Scheduler) waitForMore(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	s.cond.Wait()
	timer.Stop()
}

func (s *Scheduler) shouldDispatchEarlyLocked() bool {
	closest := s.pq.cursor.closestDeadlineNS
	if closest == 0 {
		return false
	}
	remaining := closest - nowNanos()
	return remaining < int64(s.cfg.BatcherDelayUS)*int64(time.Microsecond)
}

// ShouldDispatchEarly reports whether the candidate batch's closest
// deadline is within the configured delay budget — exposed for callers
// that want to short-circuit waiting for MaxPreferredBatchSize to fill.
func (s *Scheduler) ShouldDispatchEarly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldDispatchEarlyLocked()
}
