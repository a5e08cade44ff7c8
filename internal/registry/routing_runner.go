package registry

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kunal/infer-scheduler/internal/scheduler"
)

// RoutingRunner adapts a ModelRegistry into the scheduler.RunnerHandoff a
// Scheduler dispatches batches to: it picks a replica with PickReplica on
// every Execute, brackets the call with in-flight tracking so the scorer
// has a live signal, and flips the replica's health from the outcome.
// One level below where a router would normally sit, since a Scheduler
// already owns per-model admission.
type RoutingRunner struct {
	registry *ModelRegistry
	model    string
}

func NewRoutingRunner(reg *ModelRegistry, model string) *RoutingRunner {
	return &RoutingRunner{registry: reg, model: model}
}

func (r *RoutingRunner) Execute(batch scheduler.BatchHandoff) {
	replica := r.registry.PickReplica(r.model)
	if replica == nil {
		err := status.Errorf(codes.Unavailable, "no healthy replica for model %q", r.model)
		for _, p := range batch.Payloads {
			p.Sink.Complete(nil, err)
		}
		return
	}

	replica.IncrInFlight()
	defer replica.DecrInFlight()

	var failed bool
	for _, p := range batch.Payloads {
		original := p.Sink
		p.Sink = scheduler.CompletionSinkFunc(func(result any, err error) {
			if err != nil {
				failed = true
			}
			original.Complete(result, err)
		})
	}

	replica.Runner.Execute(batch)

	if failed {
		r.registry.MarkFailed(r.model, replica.ID)
	} else {
		r.registry.MarkHealthy(r.model, replica.ID)
	}
}
