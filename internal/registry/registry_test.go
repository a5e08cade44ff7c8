package registry

import (
	"testing"

	"github.com/kunal/infer-scheduler/internal/scheduler"
)

func TestRegisterAndLookup(t *testing.T) {
	reg := NewModelRegistry()
	s := scheduler.New(scheduler.Config{}, nil, nil)
	reg.Register("resnet50", s, []*ReplicaEntry{{ID: 1}})

	got, ok := reg.Scheduler("resnet50")
	if !ok || got != s {
		t.Fatalf("expected registered scheduler to be retrievable")
	}
	if _, ok := reg.Scheduler("missing"); ok {
		t.Fatalf("expected lookup of unregistered model to fail")
	}
}

func TestRegisterMarksReplicasHealthy(t *testing.T) {
	reg := NewModelRegistry()
	s := scheduler.New(scheduler.Config{}, nil, nil)
	reg.Register("resnet50", s, []*ReplicaEntry{{ID: 1, Healthy: false}})

	all := reg.GetAll("resnet50")
	if len(all) != 1 || !all[0].Healthy {
		t.Fatalf("expected Register to mark every replica healthy")
	}
}

func TestMarkFailedThreshold(t *testing.T) {
	reg := NewModelRegistry()
	s := scheduler.New(scheduler.Config{}, nil, nil)
	reg.Register("resnet50", s, []*ReplicaEntry{{ID: 1}})

	reg.MarkFailed("resnet50", 1)
	reg.MarkFailed("resnet50", 1)
	if len(reg.GetHealthy("resnet50")) != 1 {
		t.Fatalf("replica should stay healthy below the failure threshold")
	}

	reg.MarkFailed("resnet50", 1)
	if len(reg.GetHealthy("resnet50")) != 0 {
		t.Fatalf("replica should be marked unhealthy after 3 consecutive failures")
	}

	reg.MarkHealthy("resnet50", 1)
	if len(reg.GetHealthy("resnet50")) != 1 {
		t.Fatalf("MarkHealthy should restore the replica to the healthy set")
	}
}

func TestPickReplicaNoHealthyReturnsNil(t *testing.T) {
	reg := NewModelRegistry()
	s := scheduler.New(scheduler.Config{}, nil, nil)
	reg.Register("resnet50", s, []*ReplicaEntry{{ID: 1, Healthy: false}})
	reg.MarkFailed("resnet50", 1)
	reg.MarkFailed("resnet50", 1)
	reg.MarkFailed("resnet50", 1)

	if got := reg.PickReplica("resnet50"); got != nil {
		t.Fatalf("expected nil when no replica is healthy, got %+v", got)
	}
}

func TestModelsListsRegisteredNames(t *testing.T) {
	reg := NewModelRegistry()
	reg.Register("a", scheduler.New(scheduler.Config{}, nil, nil), nil)
	reg.Register("b", scheduler.New(scheduler.Config{}, nil, nil), nil)

	names := reg.Models()
	if len(names) != 2 {
		t.Fatalf("Models() = %v, want 2 entries", names)
	}
}
