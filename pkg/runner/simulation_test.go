package runner

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/kunal/infer-scheduler/internal/scheduler"
	"github.com/kunal/infer-scheduler/pkg/model"
)

func TestSimulatedExecuteCompletesEveryPayload(t *testing.T) {
	r := NewSimulated(1)

	var mu sync.Mutex
	completed := 0

	payloads := make([]*scheduler.Payload, 3)
	for i := range payloads {
		sink := scheduler.CompletionSinkFunc(func(result any, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			completed++
		})
		payloads[i] = scheduler.NewPayload(&model.StaticRequest{Batch: 1}, sink)
	}

	r.Execute(scheduler.BatchHandoff{Payloads: payloads})

	if completed != 3 {
		t.Fatalf("completed = %d, want 3", completed)
	}
}

func TestSimulatedPeekDecodesLittleEndianInt64s(t *testing.T) {
	r := NewSimulated(1)

	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], 4)
	binary.LittleEndian.PutUint64(buf[8:16], 8)

	req := &model.StaticRequest{InputList: []model.Input{{Name: "shape_in", Data: buf}}, Batch: 1}
	payload := scheduler.NewPayload(req, scheduler.CompletionSinkFunc(func(any, error) {}))

	vals, err := r.Peek(1, "shape_in", payload)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(vals) != 2 || vals[0] != 4 || vals[1] != 8 {
		t.Fatalf("Peek() = %v, want [4 8]", vals)
	}
}

func TestSimulatedPeekMissingInput(t *testing.T) {
	r := NewSimulated(1)
	req := &model.StaticRequest{Batch: 1}
	payload := scheduler.NewPayload(req, scheduler.CompletionSinkFunc(func(any, error) {}))

	if _, err := r.Peek(1, "missing", payload); err == nil {
		t.Fatalf("expected error peeking a missing input")
	}
}
