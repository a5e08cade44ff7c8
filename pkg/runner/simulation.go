package runner

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kunal/infer-scheduler/internal/scheduler"
)

// Simulated mimics GPU computation with CPU work plus sleep. Latency
// scales sublinearly with batch size to produce a realistic batching
// payoff for the dashboard to show off.
type Simulated struct {
	BaseLatencyMs int
}

// NewSimulated returns a Simulated runner; baseLatencyMs <= 0 uses a
// default of 5ms per batch.
func NewSimulated(baseLatencyMs int) *Simulated {
	if baseLatencyMs <= 0 {
		baseLatencyMs = 5
	}
	return &Simulated{BaseLatencyMs: baseLatencyMs}
}

func (s *Simulated) Name() string { return "simulation" }

// Execute runs simulated inference over the whole batch, then completes
// every payload's sink individually with its own result.
func (s *Simulated) Execute(batch scheduler.BatchHandoff) {
	n := len(batch.Payloads)
	if n == 0 {
		return
	}

	latency := time.Duration(s.BaseLatencyMs) * time.Millisecond
	latency += time.Duration(float64(n)*1.5) * time.Millisecond

	matrixWork(64)
	time.Sleep(latency)

	classes := []string{"cat", "dog", "car", "tree", "person", "building", "bird", "fish"}
	for i, payload := range batch.Payloads {
		result := map[string]any{
			"class":      classes[rand.Intn(len(classes))],
			"confidence": 0.7 + rand.Float64()*0.29,
			"simulated":  true,
			"batch_pos":  i,
			"batch_size": n,
		}
		data, err := json.Marshal(result)
		payload.Sink.Complete(data, err)
	}
}

// Peek decodes the named input's raw bytes as a little-endian []int64,
// simulating a device-memory read of a shape tensor's contents.
func (s *Simulated) Peek(runnerID int64, input string, payload *scheduler.Payload) ([]int64, error) {
	for _, in := range payload.Request.Inputs() {
		if in.Name != input {
			continue
		}
		if len(in.Data)%8 != 0 {
			return nil, fmt.Errorf("runner: shape tensor %q has %d bytes, not a multiple of 8", input, len(in.Data))
		}
		vals := make([]int64, len(in.Data)/8)
		for i := range vals {
			vals[i] = int64(binary.LittleEndian.Uint64(in.Data[i*8 : i*8+8]))
		}
		return vals, nil
	}
	return nil, fmt.Errorf("runner: input %q not found", input)
}

// matrixWork performs an NxN matrix multiply to create real CPU load,
// standing in for actual GPU kernel time.
func matrixWork(n int) {
	a := make([][]float64, n)
	b := make([][]float64, n)
	c := make([][]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n)
		b[i] = make([]float64, n)
		c[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			a[i][j] = rand.Float64()
			b[i][j] = rand.Float64()
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += a[i][k] * b[k][j]
			}
			c[i][j] = sum
		}
	}
	_ = math.Sqrt(c[0][0])
}
