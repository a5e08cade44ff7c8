package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kunal/infer-scheduler/internal/rpc"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "schedulerd address")
	model := flag.String("model", "resnet50", "model name to target")
	concurrency := flag.Int("concurrency", 50, "number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	log.Printf("load test starting: addr=%s model=%s concurrency=%d duration=%v", *addr, *model, *concurrency, *duration)

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	var (
		totalRequests atomic.Int64
		totalErrors   atomic.Int64
		mu            sync.Mutex
		latencies     []time.Duration
		levelDist     = make(map[uint32]int)
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				level := pickLevel()

				req := &rpc.InferRequest{
					Model:         *model,
					PriorityLevel: level,
					TimeoutUS:     2_000_000,
					Inputs: []rpc.WireInput{
						{Name: "input", Shape: []int64{1, 3, 224, 224}, Datatype: "FP32", Data: make([]byte, 1024)},
					},
				}
				resp := &rpc.InferResponse{}

				reqStart := time.Now()
				err := conn.Invoke(ctx, "/scheduler.InferenceService/Infer", req, resp, grpc.CallContentSubtype("json"))
				if err != nil || resp.Error != "" {
					totalErrors.Add(1)
					continue
				}

				elapsed := time.Since(reqStart)
				totalRequests.Add(1)

				mu.Lock()
				latencies = append(latencies, elapsed)
				levelDist[level]++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	mu.Lock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	mu.Unlock()

	total := totalRequests.Load()
	errors := totalErrors.Load()
	throughput := float64(total) / elapsed.Seconds()

	fmt.Println()
	fmt.Println("load test results")
	fmt.Printf("  duration:    %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  concurrency: %d\n", *concurrency)
	fmt.Printf("  total reqs:  %d\n", total)
	fmt.Printf("  errors:      %d (%.1f%%)\n", errors, float64(errors)/float64(total+errors)*100)
	fmt.Printf("  throughput:  %.1f req/sec\n", throughput)
	fmt.Println()

	if len(latencies) > 0 {
		fmt.Println("  latency percentiles:")
		fmt.Printf("    p50: %v\n", latencies[len(latencies)*50/100])
		fmt.Printf("    p95: %v\n", latencies[len(latencies)*95/100])
		fmt.Printf("    p99: %v\n", latencies[len(latencies)*99/100])
		fmt.Printf("    max: %v\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("  priority level distribution:")
	for level, count := range levelDist {
		pct := float64(count) / float64(total) * 100
		fmt.Printf("    level %d: %d (%.1f%%)\n", level, count, pct)
	}
}

// pickLevel weights level 3 (lowest priority) heaviest, mirroring a
// typical production traffic mix.
func pickLevel() uint32 {
	weights := []int{10, 30, 60} // level 1, 2, 3
	r := rand.Intn(100)
	switch {
	case r < weights[0]:
		return 1
	case r < weights[0]+weights[1]:
		return 2
	default:
		return 3
	}
}
