package scheduler

import (
	"errors"
	"testing"

	"github.com/kunal/infer-scheduler/pkg/model"
)

func payloadWithInput(name string, shape []int64, data []byte) *Payload {
	req := &model.StaticRequest{InputList: []model.Input{{Name: name, Shape: shape, Data: data}}, Batch: 1}
	return NewPayload(req, CompletionSinkFunc(func(any, error) {}))
}

func TestInitPendingShapeRecordsDeclaredShape(t *testing.T) {
	p := payloadWithInput("input", []int64{1, 3}, nil)
	shapes, err := InitPendingShape(1, p, map[string]bool{"input": false}, nil)
	if err != nil {
		t.Fatalf("InitPendingShape: %v", err)
	}
	if !compareDims(shapes["input"].declared, []int64{1, 3}) {
		t.Fatalf("declared shape not recorded correctly")
	}
}

func TestInitPendingShapePeeksShapeTensor(t *testing.T) {
	p := payloadWithInput("shape_in", []int64{2}, nil)
	peek := func(runnerID int64, input string, payload *Payload) ([]int64, error) {
		return []int64{4, 8}, nil
	}
	shapes, err := InitPendingShape(1, p, map[string]bool{"shape_in": true}, peek)
	if err != nil {
		t.Fatalf("InitPendingShape: %v", err)
	}
	if !compareDims(shapes["shape_in"].contents, []int64{4, 8}) {
		t.Fatalf("expected peeked contents recorded")
	}
}

func TestInitPendingShapePropagatesPeekFailure(t *testing.T) {
	p := payloadWithInput("shape_in", []int64{2}, nil)
	peek := func(runnerID int64, input string, payload *Payload) ([]int64, error) {
		return nil, errors.New("device read failed")
	}
	if _, err := InitPendingShape(1, p, map[string]bool{"shape_in": true}, peek); err == nil {
		t.Fatalf("expected peek failure to propagate on first candidate")
	}
}

func TestCompareWithPendingDeclaredShapeMismatch(t *testing.T) {
	pending := PendingShapes{"input": shapeEntry{declared: []int64{1, 3}}}
	candidate := payloadWithInput("input", []int64{1, 4}, nil)
	if CompareWithPending(1, candidate, pending, nil) {
		t.Fatalf("expected mismatch on declared shape to fail comparison")
	}
}

func TestCompareWithPendingShapeTensorContentsMatch(t *testing.T) {
	pending := PendingShapes{"shape_in": shapeEntry{declared: []int64{2}, contents: []int64{4, 8}}}
	candidate := payloadWithInput("shape_in", []int64{2}, nil)
	peek := func(runnerID int64, input string, payload *Payload) ([]int64, error) {
		return []int64{4, 8}, nil
	}
	if !CompareWithPending(1, candidate, pending, peek) {
		t.Fatalf("expected matching contents to compare equal")
	}
}

func TestCompareWithPendingFailedPeekTreatedAsNotEqual(t *testing.T) {
	pending := PendingShapes{"shape_in": shapeEntry{declared: []int64{2}, contents: []int64{4, 8}}}
	candidate := payloadWithInput("shape_in", []int64{2}, nil)
	peek := func(runnerID int64, input string, payload *Payload) ([]int64, error) {
		return nil, errors.New("device read failed")
	}
	if CompareWithPending(1, candidate, pending, peek) {
		t.Fatalf("a failed peek on a non-first candidate must be treated as not equal, not raised")
	}
}
