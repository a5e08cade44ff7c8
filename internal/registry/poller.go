package registry

import (
	"sync"
	"time"

	"github.com/kunal/infer-scheduler/internal/dashboard"
	"github.com/kunal/infer-scheduler/pkg/telemetry"
)

// Poller periodically snapshots every model's scheduler and GPU telemetry
// and pushes a dashboard.ClusterState to the broadcaster. The data is
// already in-process here (no remote worker to poll over gRPC), so the
// loop's job is purely snapshot-and-broadcast on a fixed interval.
type Poller struct {
	registry    *ModelRegistry
	collector   *telemetry.Collector
	broadcaster *dashboard.Broadcaster
	interval    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewPoller(reg *ModelRegistry, collector *telemetry.Collector, broadcaster *dashboard.Broadcaster, interval time.Duration) *Poller {
	return &Poller{
		registry:    reg,
		collector:   collector,
		broadcaster: broadcaster,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

func (p *Poller) Start() {
	p.wg.Add(1)
	go p.loop()
}

func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.broadcastOnce()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.broadcastOnce()
		}
	}
}

func (p *Poller) broadcastOnce() {
	snaps := p.collector.Snapshots()
	state := &dashboard.ClusterState{Models: make([]dashboard.ModelState, 0, len(snaps))}

	for _, s := range snaps {
		healthy := p.registry.GetHealthy(s.Model)
		all := p.registry.GetAll(s.Model)
		state.Models = append(state.Models, dashboard.ModelState{
			Model:             s.Model,
			QueueSize:         s.Size,
			TotalEnqueued:     s.TotalEnqueued,
			TotalDequeued:     s.TotalDequeued,
			TotalRejected:     s.TotalRejected,
			ClosestDeadlineUS: s.ClosestDeadlineNS / 1000,
			VRAMFreeGB:        s.VRAMFreeGB,
			VRAMTotalGB:       s.VRAMTotalGB,
			GPUUtilization:    s.GPUUtilization,
			TemperatureC:      s.TemperatureC,
			HealthyReplicas:   len(healthy),
			TotalReplicas:     len(all),
		})
	}

	p.broadcaster.Broadcast(state)
}
