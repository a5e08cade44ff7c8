// Package runner defines the external collaborator a Scheduler hands
// finished batches to and asks to peek shape tensor contents.
// Implementations can target real GPU inference (ONNX) or simulation.
package runner

import (
	"github.com/kunal/infer-scheduler/internal/scheduler"
)

// Runner is the scheduler's runtime collaborator: it executes admitted
// batches and, during batch assembly, peeks shape tensor contents so the
// scheduler can enforce shape equality without understanding tensor
// encoding itself.
type Runner interface {
	scheduler.RunnerHandoff

	// Peek returns the contents of a shape tensor input, interpreted as a
	// flat []int64, without consuming it — called by the scheduler core
	// with its queue lock released, since reading may touch device memory.
	Peek(runnerID int64, input string, payload *scheduler.Payload) ([]int64, error)

	// Name identifies the runner for logging.
	Name() string
}
