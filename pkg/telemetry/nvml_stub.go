//go:build !nvml

package telemetry

import "fmt"

// GPUInfo mirrors the nvml-tagged build's GPUInfo shape so collector.go
// compiles identically either way.
type GPUInfo struct {
	Name           string
	Index          int
	MemoryTotalGB  float64
	MemoryFreeGB   float64
	MemoryUsedGB   float64
	GPUUtilization float64
	MemUtilization float64
	TemperatureC   float64
}

// NVML is the no-cgo stand-in used by the default build: Available always
// reports false, so Collector falls back to its simulation loop.
type NVML struct{}

func NewNVML() (*NVML, error) {
	return nil, fmt.Errorf("nvml support not compiled in (build with -tags nvml)")
}

func (n *NVML) Available() bool { return false }
func (n *NVML) GPUCount() int   { return 0 }

func (n *NVML) GetGPUInfo(index int) (*GPUInfo, error) {
	return nil, fmt.Errorf("nvml not available")
}

func (n *NVML) Shutdown() {}
