package telemetry

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/kunal/infer-scheduler/internal/scheduler"
)

// Snapshot is what Collector reports for one model: its scheduler queue
// pressure plus GPU device state, real (NVML) or simulated.
type Snapshot struct {
	Model          string
	scheduler.Stats
	VRAMFreeGB     float64
	VRAMTotalGB    float64
	GPUUtilization float64
	TemperatureC   float64
}

// Collector gathers GPU metrics, real via NVML or simulated, and pairs
// them with each tracked model's Scheduler.Snapshot.
type Collector struct {
	nodeID      string
	schedulers  map[string]*scheduler.Scheduler
	schedulerMu sync.RWMutex

	mu             sync.RWMutex
	simVRAMUsedGB  float64
	simVRAMTotalGB float64
	simTempC       float64
	simGPUUtil     float64

	nvml    *NVML
	useNVML bool
}

// NewCollector builds a Collector. useNVML is "auto", "true", or "false".
func NewCollector(nodeID string, useNVML string) *Collector {
	c := &Collector{
		nodeID:         nodeID,
		schedulers:     make(map[string]*scheduler.Scheduler),
		simVRAMTotalGB: 5.0,
		simVRAMUsedGB:  0.8,
		simTempC:       42.0,
	}

	if nv, err := NewNVML(); err == nil && (useNVML == "true" || useNVML == "auto") {
		c.nvml = nv
		c.useNVML = true
		log.Printf("telemetry: using real NVML (%d GPU(s))", nv.GPUCount())
	} else {
		c.useNVML = false
		log.Printf("telemetry: using simulated GPU stats")
	}

	if !c.useNVML {
		go c.simulationLoop()
	}

	return c
}

// Track registers a model's Scheduler so its stats appear in snapshots.
func (c *Collector) Track(model string, s *scheduler.Scheduler) {
	c.schedulerMu.Lock()
	defer c.schedulerMu.Unlock()
	c.schedulers[model] = s
}

// Snapshots returns one Snapshot per tracked model.
func (c *Collector) Snapshots() []Snapshot {
	c.schedulerMu.RLock()
	defer c.schedulerMu.RUnlock()

	vramFree, vramTotal, gpuUtil, temp := c.gpuReadings()

	out := make([]Snapshot, 0, len(c.schedulers))
	for model, s := range c.schedulers {
		out = append(out, Snapshot{
			Model:          model,
			Stats:          s.Snapshot(),
			VRAMFreeGB:     vramFree,
			VRAMTotalGB:    vramTotal,
			GPUUtilization: gpuUtil,
			TemperatureC:   temp,
		})
	}
	return out
}

func (c *Collector) gpuReadings() (vramFree, vramTotal, gpuUtil, temp float64) {
	if c.useNVML && c.nvml.Available() {
		if info, err := c.nvml.GetGPUInfo(0); err == nil {
			return info.MemoryFreeGB, info.MemoryTotalGB, info.GPUUtilization, info.TemperatureC
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.simVRAMTotalGB - c.simVRAMUsedGB, c.simVRAMTotalGB, c.simGPUUtil, c.simTempC
}

// simulationLoop updates simulated GPU metrics based on aggregate queue
// pressure across all tracked models.
func (c *Collector) simulationLoop() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		c.schedulerMu.RLock()
		var totalQueue, totalDispatched float64
		for _, s := range c.schedulers {
			stats := s.Snapshot()
			totalQueue += float64(stats.Size)
			totalDispatched += float64(stats.TotalDequeued)
		}
		c.schedulerMu.RUnlock()

		c.mu.Lock()
		targetUtil := math.Min(100, totalQueue*3+math.Min(totalDispatched, 20)*2)
		c.simGPUUtil = c.simGPUUtil*0.7 + targetUtil*0.3

		c.simVRAMUsedGB = 0.8 + math.Min(totalQueue/32.0, 1.0)*2.5
		c.simVRAMUsedGB = math.Min(c.simVRAMUsedGB, c.simVRAMTotalGB-0.2)

		targetTemp := 42.0 + (c.simGPUUtil/100.0)*38.0
		c.simTempC = c.simTempC*0.9 + targetTemp*0.1
		c.simTempC += (rand.Float64() - 0.5) * 0.5
		c.mu.Unlock()
	}
}

// ServePrometheus writes Prometheus-format metrics for every tracked model.
func (c *Collector) ServePrometheus(w http.ResponseWriter, r *http.Request) {
	snaps := c.Snapshots()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP scheduler_queue_size Current admitted queue size\n")
	fmt.Fprintf(w, "# TYPE scheduler_queue_size gauge\n")
	for _, s := range snaps {
		fmt.Fprintf(w, "scheduler_queue_size{node=%q,model=%q} %d\n", c.nodeID, s.Model, s.Size)
	}

	fmt.Fprintf(w, "# HELP scheduler_total_enqueued Total requests enqueued\n")
	fmt.Fprintf(w, "# TYPE scheduler_total_enqueued counter\n")
	for _, s := range snaps {
		fmt.Fprintf(w, "scheduler_total_enqueued{node=%q,model=%q} %d\n", c.nodeID, s.Model, s.TotalEnqueued)
	}

	fmt.Fprintf(w, "# HELP scheduler_total_rejected Total requests rejected\n")
	fmt.Fprintf(w, "# TYPE scheduler_total_rejected counter\n")
	for _, s := range snaps {
		fmt.Fprintf(w, "scheduler_total_rejected{node=%q,model=%q} %d\n", c.nodeID, s.Model, s.TotalRejected)
	}

	fmt.Fprintf(w, "# HELP gpu_vram_free_gb Free VRAM in GB\n")
	fmt.Fprintf(w, "# TYPE gpu_vram_free_gb gauge\n")
	fmt.Fprintf(w, "# HELP gpu_utilization GPU utilization percentage\n")
	fmt.Fprintf(w, "# TYPE gpu_utilization gauge\n")
	if len(snaps) > 0 {
		fmt.Fprintf(w, "gpu_vram_free_gb{node=%q} %.2f\n", c.nodeID, snaps[0].VRAMFreeGB)
		fmt.Fprintf(w, "gpu_utilization{node=%q} %.2f\n", c.nodeID, snaps[0].GPUUtilization)
	}
}
