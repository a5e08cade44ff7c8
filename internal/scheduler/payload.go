package scheduler

import "github.com/kunal/infer-scheduler/pkg/model"

// CompletionSink is invoked exactly once per Payload, either by the
// scheduler (on rejection) or by the runner (after batch execution).
// result is runner-defined; err non-nil means failure.
type CompletionSink interface {
	Complete(result any, err error)
}

// CompletionSinkFunc adapts a plain function to CompletionSink.
type CompletionSinkFunc func(result any, err error)

func (f CompletionSinkFunc) Complete(result any, err error) { f(result, err) }

// Payload is one admitted request plus its bookkeeping. It is created on
// enqueue and consumed exactly once, either by dispatch to the runner or by
// rejection.
type Payload struct {
	Request model.Request
	Timers  RequestTimers
	Sink    CompletionSink
}

// NewPayload captures QueueStart and wraps req for enqueueing.
func NewPayload(req model.Request, sink CompletionSink) *Payload {
	p := &Payload{Request: req, Sink: sink}
	p.Timers.Capture(QueueStart)
	return p
}

// Reject completes the payload's sink with err. Used by the dispatcher when
// a payload's deadline expires under REJECT policy, and by the batch
// builder when the first candidate's shape tensor peek fails. A full queue
// is reported to the enqueuing caller as an error instead; the sink is not
// invoked in that case.
func (p *Payload) Reject(err error) {
	if p.Sink != nil {
		p.Sink.Complete(nil, err)
	}
}
