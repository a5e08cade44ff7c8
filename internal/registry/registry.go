// Package registry tracks, per model, the set of runner replicas capable
// of executing that model's batches, and picks among them for a given
// admitted batch. Each model owns its own in-process Scheduler; this
// package decides which runner replica a Scheduler's dispatcher should
// hand a freshly built batch to when more than one replica backs a model.
package registry

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/kunal/infer-scheduler/internal/scheduler"
	"github.com/kunal/infer-scheduler/pkg/runner"
)

// ReplicaEntry is one runner replica backing a model.
type ReplicaEntry struct {
	ID        int64
	Runner    runner.Runner
	FailCount int
	Healthy   bool

	// InFlight counts batches currently executing on this replica; the
	// scorer favors replicas with fewer in-flight batches.
	InFlight atomic.Int32
}

func (e *ReplicaEntry) IncrInFlight() { e.InFlight.Add(1) }
func (e *ReplicaEntry) DecrInFlight() { e.InFlight.Add(-1) }

// ModelRegistry maps model name to its scheduler and replica pool.
type ModelRegistry struct {
	mu         sync.RWMutex
	schedulers map[string]*scheduler.Scheduler
	replicas   map[string][]*ReplicaEntry
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		schedulers: make(map[string]*scheduler.Scheduler),
		replicas:   make(map[string][]*ReplicaEntry),
	}
}

// Register adds a model's Scheduler and its initial set of replicas.
func (r *ModelRegistry) Register(model string, s *scheduler.Scheduler, replicas []*ReplicaEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range replicas {
		rep.Healthy = true
	}
	r.schedulers[model] = s
	r.replicas[model] = replicas
}

// Scheduler returns the Scheduler for model, if registered.
func (r *ModelRegistry) Scheduler(model string) (*scheduler.Scheduler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedulers[model]
	return s, ok
}

// Models lists every registered model name.
func (r *ModelRegistry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schedulers))
	for name := range r.schedulers {
		names = append(names, name)
	}
	return names
}

// GetHealthy returns model's healthy replicas.
func (r *ModelRegistry) GetHealthy(model string) []*ReplicaEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.replicas[model]
	result := make([]*ReplicaEntry, 0, len(all))
	for _, rep := range all {
		if rep.Healthy {
			result = append(result, rep)
		}
	}
	return result
}

// GetAll returns every replica entry for model.
func (r *ModelRegistry) GetAll(model string) []*ReplicaEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*ReplicaEntry(nil), r.replicas[model]...)
}

// MarkFailed increments a replica's fail count; after 3 consecutive
// failures it is marked unhealthy.
func (r *ModelRegistry) MarkFailed(model string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.replicas[model] {
		if rep.ID == id {
			rep.FailCount++
			if rep.FailCount >= 3 {
				rep.Healthy = false
				log.Printf("registry: replica %d of model %q marked unhealthy (3 consecutive failures)", id, model)
			}
			return
		}
	}
}

// MarkHealthy resets a replica's fail count and marks it healthy.
func (r *ModelRegistry) MarkHealthy(model string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.replicas[model] {
		if rep.ID == id {
			rep.FailCount = 0
			rep.Healthy = true
			return
		}
	}
}

// PickReplica selects a replica for model using weighted random choice
// among the top-3 least-loaded healthy replicas. Returns nil if no
// healthy replica backs model.
func (r *ModelRegistry) PickReplica(model string) *ReplicaEntry {
	healthy := r.GetHealthy(model)
	if len(healthy) == 0 {
		return nil
	}
	return pickWeighted(healthy)
}

// Close stops every registered model's Scheduler.
func (r *ModelRegistry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.schedulers {
		s.Stop()
	}
}
