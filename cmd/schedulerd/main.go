package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/kunal/infer-scheduler/internal/dashboard"
	"github.com/kunal/infer-scheduler/internal/registry"
	"github.com/kunal/infer-scheduler/internal/rpc"
	"github.com/kunal/infer-scheduler/internal/scheduler"
	"github.com/kunal/infer-scheduler/pkg/config"
	"github.com/kunal/infer-scheduler/pkg/runner"
	"github.com/kunal/infer-scheduler/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Printf("schedulerd %s starting: rpc=%d dashboard=%d metrics=%d", cfg.NodeID, cfg.RPCPort, cfg.DashboardPort, cfg.MetricsPort)
	log.Printf("runner=%s nvml=%s", cfg.RunnerType, cfg.UseNVML)

	collector := telemetry.NewCollector(cfg.NodeID, cfg.UseNVML)
	reg := registry.NewModelRegistry()

	models := cfg.AllModels()
	if len(models) == 0 {
		models = []string{"default"}
	}

	for _, m := range models {
		policy := cfg.PolicyFor(m)
		r, err := newRunner(cfg)
		if err != nil {
			log.Fatalf("runner for model %q: %v", m, err)
		}

		schedCfg := policy.ToSchedulerConfig(1)
		sched := scheduler.New(schedCfg, r.Peek, registry.NewRoutingRunner(reg, m))

		reg.Register(m, sched, []*registry.ReplicaEntry{{ID: 1, Runner: r}})
		sched.Start()

		collector.Track(m, sched)
		log.Printf("model %q registered: levels=%d max_batch=%d", m, schedCfg.PriorityLevels, schedCfg.MaxPreferredBatchSize)
	}

	broadcaster := dashboard.NewBroadcaster()
	poller := registry.NewPoller(reg, collector, broadcaster, cfg.PollInterval)
	poller.Start()

	grpcServer := grpc.NewServer()
	rpc.RegisterGRPC(grpcServer, rpc.NewServer(reg))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPCPort))
	if err != nil {
		log.Fatalf("listen on port %d: %v", cfg.RPCPort, err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", broadcaster.HandleWS)
		mux.HandleFunc("/metrics", collector.ServePrometheus)
		addr := fmt.Sprintf(":%d", cfg.DashboardPort)
		log.Printf("dashboard listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("dashboard server failed: %v", err)
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", collector.ServePrometheus)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		log.Printf("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("metrics server failed: %v", err)
		}
	}()

	go func() {
		log.Printf("gRPC server listening on %s", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down schedulerd...")
	grpcServer.GracefulStop()
	poller.Stop()
	reg.Close()
	log.Println("schedulerd stopped")
}

func newRunner(cfg *config.Config) (runner.Runner, error) {
	if cfg.RunnerType == "onnx" {
		return newONNXRunner(cfg)
	}
	return runner.NewSimulated(5), nil
}
