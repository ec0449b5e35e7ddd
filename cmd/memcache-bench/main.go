package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaycache/memcache"
)

type OperationType string

const (
	CacheHit     OperationType = "cache-hit"
	DynamicValue OperationType = "dynamic-value"
	CacheMiss    OperationType = "cache-miss"
	Increment    OperationType = "increment"
	Delete       OperationType = "delete"
	All          OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	OpsPerSecond float64
}

func main() {
	var (
		operation   = flag.String("operation", "all", "cache-hit, dynamic-value, cache-miss, increment, delete, or all")
		duration    = flag.Duration("duration", 5*time.Second, "duration to run each benchmark")
		concurrency = flag.Int("concurrency", 8, "number of concurrent workers")
		servers     = flag.String("servers", "localhost:11211", "comma-separated list of memcache servers")
	)
	flag.Parse()

	fmt.Println("Memcache Benchmark")
	fmt.Println("==================")
	fmt.Printf("operation=%s duration=%v concurrency=%d servers=%s\n\n", *operation, *duration, *concurrency, *servers)

	var entries []memcache.ServerEntry
	for _, s := range strings.Split(*servers, ",") {
		entries = append(entries, memcache.Server(strings.TrimSpace(s)))
	}

	client, err := memcache.NewClient(memcache.Config{Servers: entries})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()

	fmt.Print("testing connection... ")
	if _, err := client.Set(context.Background(), "bench-connectivity-check", "1", 60); err != nil {
		fmt.Printf("failed: %v\n", err)
		return
	}
	fmt.Println("ok")

	op := OperationType(*operation)
	if op == All {
		for _, o := range []OperationType{CacheHit, DynamicValue, CacheMiss, Increment, Delete} {
			fmt.Printf("\n--- %s ---\n", o)
			printResult(run(client, o, *duration, *concurrency))
			time.Sleep(250 * time.Millisecond)
		}
		return
	}
	printResult(run(client, op, *duration, *concurrency))
}

func run(client *memcache.Client, op OperationType, duration time.Duration, concurrency int) *BenchmarkResult {
	var successes, failures, total int64

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			iterate(ctx, client, op, workerID, &total, &successes, &failures)
		}(w)
	}
	wg.Wait()

	return &BenchmarkResult{
		Operation:    op,
		Duration:     duration,
		TotalOps:     atomic.LoadInt64(&total),
		Successes:    atomic.LoadInt64(&successes),
		Failures:     atomic.LoadInt64(&failures),
		OpsPerSecond: float64(atomic.LoadInt64(&total)) / duration.Seconds(),
	}
}

func iterate(ctx context.Context, client *memcache.Client, op OperationType, workerID int, total, successes, failures *int64) {
	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		key := fmt.Sprintf("bench-%s-w%d-%d", op, workerID, opKeyShard(op, i))
		ok := oneOp(ctx, client, op, key, i)
		atomic.AddInt64(total, 1)
		if ok {
			atomic.AddInt64(successes, 1)
		} else {
			atomic.AddInt64(failures, 1)
		}
		i++
	}
}

// opKeyShard bounds how many distinct keys an operation cycles through:
// cache-hit reuses one key (warm), the rest use a new key per iteration.
func opKeyShard(op OperationType, i int) int {
	if op == CacheHit {
		return 0
	}
	return i
}

func oneOp(ctx context.Context, client *memcache.Client, op OperationType, key string, i int) bool {
	switch op {
	case CacheHit:
		if i == 0 {
			ok, _ := client.Set(ctx, key, "warm-value", 300)
			return ok
		}
		_, ok := client.Get(ctx, key)
		return ok
	case DynamicValue:
		ok, _ := client.Set(ctx, key, strconv.Itoa(i), 300)
		return ok
	case CacheMiss:
		_, ok := client.Get(ctx, key)
		return !ok
	case Increment:
		_, ok := client.IncrWithInitial(ctx, key, 1, 0, 300)
		return ok
	case Delete:
		client.Set(ctx, key, "v", 300)
		ok, _ := client.Delete(ctx, key)
		return ok
	default:
		return false
	}
}

func printResult(r *BenchmarkResult) {
	fmt.Printf("  total=%d success=%d fail=%d ops/s=%.1f\n", r.TotalOps, r.Successes, r.Failures, r.OpsPerSecond)
}
