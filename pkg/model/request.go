// Package model defines the minimal request/input surface the scheduler
// consumes. The actual tensor/byte-buffer carriers are an external
// collaborator; this package only exposes the accessors the scheduler
// core needs.
package model

// Input is one named tensor input of a request. Data holds the raw tensor
// bytes; for shape tensors it is the only place the runner's Peek
// collaborator can read declared-vs-actual contents from.
type Input struct {
	Name     string
	Shape    []int64
	Datatype string
	Data     []byte
}

// Request is the collaborator interface the scheduler core consumes. A real
// transport layer (gRPC, shared memory, ...) supplies the concrete
// implementation; StaticRequest below is a plain in-memory one used by
// tests.
type Request interface {
	Inputs() []Input
	BatchSize() uint64
	// TimeoutUS returns the client-requested timeout override, in
	// microseconds. 0 means "no override".
	TimeoutUS() uint64
	// Model names the model this request targets, used to route to the
	// right per-model Scheduler.
	Model() string
}

// StaticRequest is a concrete Request backed by plain fields.
type StaticRequest struct {
	InputList  []Input
	Batch      uint64
	TimeoutMic uint64
	ModelName  string
}

func (r *StaticRequest) Inputs() []Input   { return r.InputList }
func (r *StaticRequest) BatchSize() uint64 { return r.Batch }
func (r *StaticRequest) TimeoutUS() uint64 { return r.TimeoutMic }
func (r *StaticRequest) Model() string     { return r.ModelName }

var _ Request = (*StaticRequest)(nil)
