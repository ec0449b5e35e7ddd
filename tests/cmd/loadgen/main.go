package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/relaycache/memcache"
	"github.com/relaycache/memcache/tests/internal/promexporter"
	"github.com/relaycache/memcache/tests/testutils"
	"github.com/relaycache/memcache/tests/workload"
)

func main() {
	// Flags
	concurrency := flag.Int("concurrency", 100, "Number of concurrent workers")
	workloadName := flag.String("workload", "mixed", "Workload pattern to use")
	metricsPort := flag.String("metrics-port", ":9090", "Port for Prometheus metrics")
	maxProcs := flag.Int("max-procs", 4, "Maximum number of CPU cores to use (GOMAXPROCS)")
	hotKeys := flag.Int("hot-keys", 10, "Number of hot keys for workload (default 10)")

	flag.Parse()

	// Configure workload
	workload.SetHotKeyCount(*hotKeys)

	// Limit CPU cores
	runtime.GOMAXPROCS(*maxProcs)

	log.Printf("Starting memcache load generator")
	log.Printf("  Max CPU cores: %d", *maxProcs)
	log.Printf("  Concurrency: %d", *concurrency)
	log.Printf("  Workload: %s", *workloadName)
	log.Printf("  Hot keys: %d", *hotKeys)
	log.Printf("  Metrics: http://localhost%s/metrics", *metricsPort)

	// Setup Prometheus exporter
	exporter := promexporter.NewExporter()
	go func() {
		log.Printf("Starting metrics server on %s", *metricsPort)
		if err := exporter.ServeHTTP(*metricsPort); err != nil {
			log.Fatalf("Metrics server error: %v", err)
		}
	}()

	// Setup memcache client
	config := memcache.Config{
		Servers: memcache.Servers("10.0.0.234:11211"),
		Breaker: func(addr string) memcache.CircuitBreaker {
			return memcache.NewGoBreaker(addr, 5*time.Second)
		},
	}

	client, err := memcache.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Disconnect()

	fmt.Printf("[Setup] Created memcache client with %d servers\n", len(config.Servers))

	// Wait for client to be healthy
	ctx := context.Background()
	log.Printf("Waiting for memcache servers to be healthy...")
	if err := testutils.WaitForHealthy(ctx, client); err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	log.Printf("All servers healthy")

	// Get workload
	wl, err := workload.Get(*workloadName)
	if err != nil {
		log.Fatalf("Failed to load workload: %v", err)
	}
	log.Printf("Workload: %s - %s", wl.Name(), wl.Description())

	// Create workload runner
	runner := workload.NewRunner(client, wl, *concurrency)

	// Start metrics collection goroutine
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go metricsCollectionLoop(ctx, runner, client, exporter.ClientMetrics())

	// Start workload
	log.Printf("Starting workload with %d workers", *concurrency)
	go func() {
		if err := runner.Run(ctx); err != nil {
			log.Printf("Workload error: %v", err)
		}
	}()

	// Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Printf("Shutting down...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	log.Printf("Shutdown complete")
}

func metricsCollectionLoop(ctx context.Context, runner *workload.Runner, client *memcache.Client, metrics *promexporter.ClientMetrics) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastTotal int64
	var lastTime = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Collect workload stats
			stats := runner.Stats()

			// Calculate rate
			now := time.Now()
			elapsed := now.Sub(lastTime).Seconds()
			if elapsed > 0 {
				opsThisPeriod := stats.TotalOps - lastTotal
				rate := float64(opsThisPeriod) / elapsed
				metrics.SetOperationRate(rate)
			}

			metrics.SetErrorRate(stats.ErrorRate)
			lastTotal = stats.TotalOps
			lastTime = now

			// Collect connection and circuit breaker stats from all servers
			connStats := client.ConnectionStats()
			breakerStates := client.BreakerStates()
			for server, cs := range connStats {
				metrics.SetConnectionStats(server, cs.Dials, cs.Reconnects, cs.Timeouts, cs.FatalFailures, cs.DialErrors)

				stateValue := circuitStateToInt(breakerStates[server])
				metrics.SetCircuitBreakerState(server, stateValue)
			}
		}
	}
}

func circuitStateToInt(state fmt.Stringer) int {
	switch state.String() {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
