package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaycache/memcache"
	"github.com/relaycache/memcache/tests/workload"
)

// Collector periodically collects metrics from the memcache client and workload
type Collector struct {
	client           *memcache.Client
	workloadRunner   *workload.Runner
	interval         time.Duration
	snapshots        []Snapshot
	mu               sync.Mutex
	circuitChanges   []CircuitBreakerChange
	lastCircuitState map[string]string
}

// Snapshot represents metrics at a point in time
type Snapshot struct {
	Timestamp     time.Time
	WorkloadStats workload.WorkloadStats
	ConnStats     []ConnectionSnapshot
}

// ConnectionSnapshot represents one server Connection's counters and
// breaker state at a point in time.
type ConnectionSnapshot struct {
	ServerAddr    string
	Dials         uint64
	DialErrors    uint64
	Reconnects    uint64
	Timeouts      uint64
	FatalFailures uint64
	RequestsDone  uint64
	BreakerState  string
}

// CircuitBreakerChange records when a circuit breaker changes state
type CircuitBreakerChange struct {
	Timestamp  time.Time
	ServerAddr string
	OldState   string
	NewState   string
}

// NewCollector creates a metrics collector
func NewCollector(client *memcache.Client, runner *workload.Runner, interval time.Duration) *Collector {
	return &Collector{
		client:           client,
		workloadRunner:   runner,
		interval:         interval,
		snapshots:        make([]Snapshot, 0),
		circuitChanges:   make([]CircuitBreakerChange, 0),
		lastCircuitState: make(map[string]string),
	}
}

// Start begins collecting metrics periodically
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	snapshot := Snapshot{
		Timestamp:     time.Now(),
		WorkloadStats: c.workloadRunner.Stats(),
		ConnStats:     make([]ConnectionSnapshot, 0),
	}

	connStats := c.client.ConnectionStats()
	breakerStates := c.client.BreakerStates()
	for addr, stats := range connStats {
		snapshot.ConnStats = append(snapshot.ConnStats, ConnectionSnapshot{
			ServerAddr:    addr,
			Dials:         stats.Dials,
			DialErrors:    stats.DialErrors,
			Reconnects:    stats.Reconnects,
			Timeouts:      stats.Timeouts,
			FatalFailures: stats.FatalFailures,
			RequestsDone:  stats.RequestsDone,
			BreakerState:  breakerStates[addr].String(),
		})
	}

	c.mu.Lock()
	c.snapshots = append(c.snapshots, snapshot)

	for _, conn := range snapshot.ConnStats {
		if last, ok := c.lastCircuitState[conn.ServerAddr]; ok && last != conn.BreakerState {
			c.circuitChanges = append(c.circuitChanges, CircuitBreakerChange{
				Timestamp:  snapshot.Timestamp,
				ServerAddr: conn.ServerAddr,
				OldState:   last,
				NewState:   conn.BreakerState,
			})
		}
		c.lastCircuitState[conn.ServerAddr] = conn.BreakerState
	}
	c.mu.Unlock()
}

// GetSnapshots returns all collected snapshots
func (c *Collector) GetSnapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Snapshot{}, c.snapshots...)
}

// GetCircuitChanges returns all recorded circuit breaker state changes
func (c *Collector) GetCircuitChanges() []CircuitBreakerChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CircuitBreakerChange{}, c.circuitChanges...)
}

// PrintLatest prints the most recent snapshot
func (c *Collector) PrintLatest() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.snapshots) == 0 {
		fmt.Println("[Metrics] No data collected yet")
		return
	}

	snapshot := c.snapshots[len(c.snapshots)-1]
	fmt.Printf("\n[Metrics] %s\n", snapshot.Timestamp.Format("15:04:05"))
	fmt.Printf("  Workload: %s\n", snapshot.WorkloadStats.String())

	for _, conn := range snapshot.ConnStats {
		fmt.Printf("  Server %s:\n", conn.ServerAddr)
		fmt.Printf("    Dials: %d, Reconnects: %d, Timeouts: %d, Fatal: %d\n",
			conn.Dials, conn.Reconnects, conn.Timeouts, conn.FatalFailures)
		fmt.Printf("    Circuit: %s\n", conn.BreakerState)
	}
}

// PrintSummary prints a summary of all collected metrics
func (c *Collector) PrintSummary() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.snapshots) == 0 {
		fmt.Println("[Summary] No data collected")
		return
	}

	firstSnap := c.snapshots[0]
	lastSnap := c.snapshots[len(c.snapshots)-1]
	duration := lastSnap.Timestamp.Sub(firstSnap.Timestamp)

	fmt.Println("\n========================================")
	fmt.Println("          TEST SUMMARY")
	fmt.Println("========================================")
	fmt.Printf("Duration: %s\n", duration.Round(time.Second))
	fmt.Printf("Snapshots: %d\n", len(c.snapshots))

	fmt.Println("\nWorkload Statistics:")
	fmt.Printf("  Total Operations: %d\n", lastSnap.WorkloadStats.TotalOps)
	fmt.Printf("  Successful: %d\n", lastSnap.WorkloadStats.SuccessOps)
	fmt.Printf("  Failed: %d\n", lastSnap.WorkloadStats.FailedOps)
	fmt.Printf("  Error Rate: %.2f%%\n", lastSnap.WorkloadStats.ErrorRate*100)

	if duration > 0 {
		opsPerSec := float64(lastSnap.WorkloadStats.TotalOps) / duration.Seconds()
		fmt.Printf("  Throughput: %.0f ops/sec\n", opsPerSec)
	}

	if len(c.circuitChanges) > 0 {
		fmt.Println("\nCircuit Breaker State Changes:")
		for _, change := range c.circuitChanges {
			fmt.Printf("  [%s] %s: %s -> %s\n",
				change.Timestamp.Format("15:04:05"),
				change.ServerAddr,
				change.OldState,
				change.NewState)
		}
	} else {
		fmt.Println("\nCircuit Breaker: No state changes")
	}

	fmt.Println("\nFinal Connection States:")
	for _, conn := range lastSnap.ConnStats {
		fmt.Printf("  %s:\n", conn.ServerAddr)
		fmt.Printf("    Dials: %d, DialErrors: %d, RequestsDone: %d\n",
			conn.Dials, conn.DialErrors, conn.RequestsDone)
		fmt.Printf("    Circuit: %s\n", conn.BreakerState)
	}

	fmt.Println("========================================")
}
