package scheduler

// PeekFunc extracts the contents of a shape tensor input from a payload.
// Implemented by the runner because doing so may require copying out of
// device memory — the scheduler has no idea how. runnerID lets a
// multi-runner deployment route the peek correctly.
type PeekFunc func(runnerID int64, input string, payload *Payload) ([]int64, error)

// shapeEntry is what PendingShapes remembers about one enforced input:
// its declared shape, and — only for shape tensors — the tensor contents
// peeked at admission time.
type shapeEntry struct {
	declared []int64
	contents []int64 // nil unless input is a shape tensor
}

// PendingShapes is the per-batch shape memory built by InitPendingShape and
// consulted by CompareWithPending.
type PendingShapes map[string]shapeEntry

func compareDims(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// InitPendingShape seeds PendingShapes from the first payload of a new
// batch. For every input named in enforceEqual it records the declared
// shape, and — if the input is a shape tensor — peeks its contents.
//
// A peek failure here propagates to the caller: this is the first (and
// therefore highest-priority) candidate of the batch, so there is nothing
// else to fall back on (see DESIGN.md's Open Question decision).
func InitPendingShape(runnerID int64, payload *Payload, enforceEqual map[string]bool, peek PeekFunc) (PendingShapes, error) {
	shapes := make(PendingShapes, len(enforceEqual))
	for _, in := range payload.Request.Inputs() {
		isShapeTensor, ok := enforceEqual[in.Name]
		if !ok {
			continue
		}
		entry := shapeEntry{declared: in.Shape}
		if isShapeTensor {
			contents, err := peek(runnerID, in.Name, payload)
			if err != nil {
				return nil, err
			}
			entry.contents = contents
		}
		shapes[in.Name] = entry
	}
	return shapes, nil
}

// CompareWithPending reports whether payload's inputs are shape-compatible
// with the batch built so far. A failed peek is conservatively treated as
// "not equal" rather than raised — the candidate simply stays queued for a
// future batch.
func CompareWithPending(runnerID int64, payload *Payload, pending PendingShapes, peek PeekFunc) bool {
	for _, in := range payload.Request.Inputs() {
		entry, ok := pending[in.Name]
		if !ok {
			continue
		}
		if !compareDims(entry.declared, in.Shape) {
			return false
		}
		if len(entry.contents) == 0 {
			continue
		}
		contents, err := peek(runnerID, in.Name, payload)
		if err != nil {
			return false
		}
		if !compareDims(entry.contents, contents) {
			return false
		}
	}
	return true
}
