package main

import (
	"context"
	crand "crypto/rand"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/relaycache/memcache"
)

type Config struct {
	addr        string
	concurrency int
	cycles      int
	duration    time.Duration
}

type Stats struct {
	operations atomic.Int64
	successes  atomic.Int64
	misses     atomic.Int64
	failures   atomic.Int64
	errors     atomic.Int64
}

func (s *Stats) reset() {
	s.operations.Store(0)
	s.successes.Store(0)
	s.misses.Store(0)
	s.failures.Store(0)
	s.errors.Store(0)
}

func (s *Stats) snapshot() (ops, success, miss, fail, errs int64) {
	return s.operations.Load(), s.successes.Load(), s.misses.Load(), s.failures.Load(), s.errors.Load()
}

type Check struct {
	name     string
	duration time.Duration
	run      func(ctx context.Context, client *memcache.Client, stats *Stats, workerID int)
}

// isContextError returns true if the error is a context cancellation or
// deadline error, or this client's own closed-client sentinel raised while
// a cycle is winding down.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, memcache.ErrClientClosed)
}

func main() {
	config := Config{}
	flag.StringVar(&config.addr, "addr", "127.0.0.1:11211", "comma-separated memcache server addresses")
	flag.IntVar(&config.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.IntVar(&config.cycles, "cycles", 0, "number of cycles to run (0 = infinite)")
	flag.DurationVar(&config.duration, "duration", 5*time.Second, "duration per check")
	flag.Parse()

	fmt.Printf("Memcache Load Tester\n")
	fmt.Printf("====================\n")
	fmt.Printf("Server:      %s\n", config.addr)
	fmt.Printf("Concurrency: %d\n", config.concurrency)
	fmt.Printf("Cycles:      %s\n", cyclesString(config.cycles))
	fmt.Printf("Duration:    %s per check\n\n", config.duration)

	var addrs []string
	for _, a := range strings.Split(config.addr, ",") {
		addrs = append(addrs, strings.TrimSpace(a))
	}

	client, err := memcache.NewClient(memcache.Config{Servers: memcache.Servers(addrs...)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	checks := []Check{
		{name: "Set/Get", duration: config.duration, run: checkSetGet},
		{name: "Add", duration: config.duration, run: checkAdd},
		{name: "Set/Delete/Get", duration: config.duration, run: checkDelete},
		{name: "Increment", duration: config.duration, run: checkIncrement},
		{name: "Decrement", duration: config.duration, run: checkDecrement},
		{name: "Increment with TTL", duration: config.duration, run: checkIncrementTTL},
		{name: "Mixed Operations", duration: config.duration, run: checkMixed},
		{name: "Large Values", duration: config.duration, run: checkLargeValues},
		{name: "Binary Data", duration: config.duration, run: checkBinaryData},
		{name: "TTL Behavior", duration: config.duration, run: checkTTL},
	}

	cycle := 1
	for {
		if config.cycles > 0 && cycle > config.cycles {
			break
		}
		if ctx.Err() != nil {
			break
		}

		fmt.Printf("=== Cycle %d ===\n", cycle)

		for _, check := range checks {
			if ctx.Err() != nil {
				break
			}
			runCheck(ctx, client, check, config.concurrency)
		}

		fmt.Println()
		cycle++
	}

	fmt.Println("Load testing completed.")
}

func cyclesString(cycles int) string {
	if cycles == 0 {
		return "infinite"
	}
	return fmt.Sprintf("%d", cycles)
}

func runCheck(ctx context.Context, client *memcache.Client, check Check, concurrency int) {
	fmt.Printf("\n[%s]\n", check.name)

	stats := &Stats{}
	var wg sync.WaitGroup

	checkCtx, cancel := context.WithTimeout(ctx, check.duration)
	defer cancel()

	done := make(chan struct{})
	go reportProgress(checkCtx, stats, done)

	startTime := time.Now()
	for i := range concurrency {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for checkCtx.Err() == nil {
				check.run(checkCtx, client, stats, workerID)
			}
		}(i)
	}

	wg.Wait()
	close(done)

	duration := time.Since(startTime)
	ops, success, miss, fail, errs := stats.snapshot()
	opsPerSec := float64(ops) / duration.Seconds()

	fmt.Printf("\rCompleted: %d ops in %v (%.0f ops/sec) | Success: %d | Miss: %d | Fail: %d | Errors: %d\n",
		ops, duration.Round(time.Millisecond), opsPerSec, success, miss, fail, errs)
}

func reportProgress(ctx context.Context, stats *Stats, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastOps := int64(0)
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			now := time.Now()
			ops, success, miss, fail, errs := stats.snapshot()
			elapsed := now.Sub(lastTime).Seconds()

			rate := float64(ops-lastOps) / elapsed
			lastOps = ops
			lastTime = now

			fmt.Printf("\rRunning: %d ops (%.0f ops/sec) | Success: %d | Miss: %d | Fail: %d | Errors: %d",
				ops, rate, success, miss, fail, errs)
		}
	}
}

// Check implementations

func checkSetGet(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:setget:%d:%d", workerID, rand.IntN(100))
	value := fmt.Sprintf("value-%d", rand.IntN(1000))

	stored, err := client.Set(ctx, key, value, 0)
	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
			fmt.Printf("\n[SetGet] Set error for key %s: %v\n", key, err)
		}
		return
	}
	if !stored {
		stats.failures.Add(1)
		fmt.Printf("\n[SetGet] UNEXPECTED: Set reported not stored for key %s\n", key)
		return
	}

	got, ok := client.Get(ctx, key)

	stats.operations.Add(1)

	if !ok {
		stats.failures.Add(1)
		fmt.Printf("\n[SetGet] UNEXPECTED: Key %s not found after set\n", key)
		return
	}

	if fmt.Sprintf("%v", got) != value {
		stats.failures.Add(1)
		fmt.Printf("\n[SetGet] UNEXPECTED: Value mismatch for key %s: expected %s, got %v\n", key, value, got)
		return
	}

	stats.successes.Add(1)
}

func checkAdd(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:add:%d:%d", workerID, rand.IntN(1000))
	value := fmt.Sprintf("value-%d", rand.IntN(1000))

	_, _ = client.Delete(ctx, key)

	added, err := client.Add(ctx, key, value, 0)
	stats.operations.Add(1)

	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
			fmt.Printf("\n[Add] First add error for key %s: %v\n", key, err)
		}
		return
	}
	if !added {
		stats.failures.Add(1)
		fmt.Printf("\n[Add] UNEXPECTED: First add reported not stored for key %s\n", key)
		return
	}

	addedAgain, err := client.Add(ctx, key, "different", 0)
	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
		}
		return
	}

	if addedAgain {
		stats.failures.Add(1)
		fmt.Printf("\n[Add] UNEXPECTED: Second add succeeded for key %s (should fail)\n", key)
		return
	}

	stats.successes.Add(1)
}

func checkDelete(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:delete:%d:%d", workerID, rand.IntN(100))
	value := fmt.Sprintf("value-%d", rand.IntN(1000))

	_, err := client.Set(ctx, key, value, 0)
	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
			fmt.Printf("\n[Delete] Set error for key %s: %v\n", key, err)
		}
		return
	}

	_, err = client.Delete(ctx, key)
	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
			fmt.Printf("\n[Delete] Delete error for key %s: %v\n", key, err)
		}
		return
	}

	_, ok := client.Get(ctx, key)

	stats.operations.Add(1)

	if ok {
		stats.failures.Add(1)
		fmt.Printf("\n[Delete] UNEXPECTED: Key %s found after delete\n", key)
		return
	}

	stats.successes.Add(1)
	stats.misses.Add(1)
}

func checkIncrement(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:incr:%d", workerID)

	_, _ = client.Delete(ctx, key)

	value, ok := client.IncrWithInitial(ctx, key, 5, 5, 0)
	if !ok {
		stats.errors.Add(1)
		fmt.Printf("\n[Increment] First increment for key %s not found\n", key)
		return
	}
	if value != 5 {
		stats.failures.Add(1)
		fmt.Printf("\n[Increment] UNEXPECTED: First increment returned %d, expected 5\n", value)
		return
	}

	value, ok = client.Incr(ctx, key, 3)
	if !ok {
		stats.errors.Add(1)
		fmt.Printf("\n[Increment] Second increment for key %s not found\n", key)
		return
	}
	if value != 8 {
		stats.failures.Add(1)
		fmt.Printf("\n[Increment] UNEXPECTED: Second increment returned %d, expected 8\n", value)
		return
	}

	stats.operations.Add(1)
	stats.successes.Add(1)
}

func checkDecrement(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:decr:%d", workerID)

	_, _ = client.Delete(ctx, key)

	// A missing key is created at the initial value (0) with no delta
	// applied, so the first decrement returns 0.
	value, ok := client.DecrWithInitial(ctx, key, 5, 0, 0)
	if !ok {
		stats.errors.Add(1)
		fmt.Printf("\n[Decrement] First decrement for key %s not found\n", key)
		return
	}
	if value != 0 {
		stats.failures.Add(1)
		fmt.Printf("\n[Decrement] UNEXPECTED: First decrement returned %d, expected 0\n", value)
		return
	}

	value, ok = client.Incr(ctx, key, 10)
	if !ok {
		stats.errors.Add(1)
		fmt.Printf("\n[Decrement] Increment error for key %s\n", key)
		return
	}

	value, ok = client.Decr(ctx, key, 3)
	if !ok {
		stats.errors.Add(1)
		fmt.Printf("\n[Decrement] Decrement error for key %s\n", key)
		return
	}
	if value != 7 {
		stats.failures.Add(1)
		fmt.Printf("\n[Decrement] UNEXPECTED: Decrement returned %d, expected 7\n", value)
		return
	}

	stats.operations.Add(1)
	stats.successes.Add(1)
}

func checkIncrementTTL(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:incrttl:%d:%d", workerID, rand.IntN(1000))

	_, _ = client.Delete(ctx, key)

	value, ok := client.IncrWithInitial(ctx, key, 1, 1, 2)
	if !ok {
		stats.errors.Add(1)
		fmt.Printf("\n[IncrementTTL] Increment for key %s not found\n", key)
		return
	}
	if value != 1 {
		stats.failures.Add(1)
		fmt.Printf("\n[IncrementTTL] UNEXPECTED: Increment returned %d, expected 1\n", value)
		return
	}

	stats.operations.Add(1)
	stats.successes.Add(1)
}

func checkMixed(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	keyBase := fmt.Sprintf("test:mixed:%d", workerID)
	op := rand.IntN(5)

	switch op {
	case 0: // Set
		key := fmt.Sprintf("%s:set:%d", keyBase, rand.IntN(50))
		_, err := client.Set(ctx, key, fmt.Sprintf("value-%d", rand.IntN(1000)), 0)
		if err != nil {
			if !isContextError(err) {
				stats.errors.Add(1)
			}
			return
		}
		stats.operations.Add(1)
		stats.successes.Add(1)

	case 1: // Get
		key := fmt.Sprintf("%s:set:%d", keyBase, rand.IntN(50))
		_, ok := client.Get(ctx, key)
		stats.operations.Add(1)
		if ok {
			stats.successes.Add(1)
		} else {
			stats.misses.Add(1)
		}

	case 2: // Delete
		key := fmt.Sprintf("%s:set:%d", keyBase, rand.IntN(50))
		_, err := client.Delete(ctx, key)
		if err != nil {
			if !isContextError(err) {
				stats.errors.Add(1)
			}
			return
		}
		stats.operations.Add(1)
		stats.successes.Add(1)

	case 3: // Increment
		key := fmt.Sprintf("%s:counter:%d", keyBase, rand.IntN(10))
		_, ok := client.IncrWithInitial(ctx, key, uint64(rand.IntN(10)+1), 0, 0)
		stats.operations.Add(1)
		if ok {
			stats.successes.Add(1)
		} else {
			stats.misses.Add(1)
		}

	case 4: // Add
		key := fmt.Sprintf("%s:add:%d", keyBase, rand.IntN(100))
		added, err := client.Add(ctx, key, fmt.Sprintf("value-%d", rand.IntN(1000)), 0)
		stats.operations.Add(1)
		if err != nil {
			if !isContextError(err) {
				stats.failures.Add(1)
			}
			return
		}
		// Add can legitimately fail (report added=false) if the key exists.
		if added {
			stats.successes.Add(1)
		} else {
			stats.misses.Add(1)
		}
	}
}

func checkLargeValues(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:large:%d:%d", workerID, rand.IntN(10))
	size := 50000 + rand.IntN(50000) // 50-100KB
	value := make([]byte, size)
	crand.Read(value)

	_, err := client.Set(ctx, key, value, 0)
	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
			fmt.Printf("\n[LargeValues] Set error for key %s: %v\n", key, err)
		}
		return
	}

	got, ok := client.Get(ctx, key)

	stats.operations.Add(1)

	if !ok {
		stats.failures.Add(1)
		fmt.Printf("\n[LargeValues] UNEXPECTED: Key %s not found after set\n", key)
		return
	}

	gotBytes, isBytes := got.([]byte)
	if !isBytes || len(gotBytes) != len(value) {
		stats.failures.Add(1)
		fmt.Printf("\n[LargeValues] UNEXPECTED: Value size mismatch for key %s\n", key)
		return
	}

	stats.successes.Add(1)
}

func checkBinaryData(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:binary:%d:%d", workerID, rand.IntN(10))
	value := make([]byte, 100)
	crand.Read(value)

	_, err := client.Set(ctx, key, value, 0)
	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
			fmt.Printf("\n[BinaryData] Set error for key %s: %v\n", key, err)
		}
		return
	}

	got, ok := client.Get(ctx, key)

	stats.operations.Add(1)

	if !ok {
		stats.failures.Add(1)
		fmt.Printf("\n[BinaryData] UNEXPECTED: Key %s not found after set\n", key)
		return
	}

	gotBytes, isBytes := got.([]byte)
	if !isBytes || len(gotBytes) != len(value) {
		stats.failures.Add(1)
		fmt.Printf("\n[BinaryData] UNEXPECTED: Value size mismatch for key %s\n", key)
		return
	}

	for i := range value {
		if gotBytes[i] != value[i] {
			stats.failures.Add(1)
			fmt.Printf("\n[BinaryData] UNEXPECTED: Value byte mismatch at index %d for key %s\n", i, key)
			return
		}
	}

	stats.successes.Add(1)
}

func checkTTL(ctx context.Context, client *memcache.Client, stats *Stats, workerID int) {
	key := fmt.Sprintf("test:ttl:%d:%d", workerID, rand.IntN(100))
	value := fmt.Sprintf("value-%d", rand.IntN(1000))

	_, err := client.Set(ctx, key, value, 2)
	if err != nil {
		if !isContextError(err) {
			stats.errors.Add(1)
			fmt.Printf("\n[TTL] Set error for key %s: %v\n", key, err)
		}
		return
	}

	_, ok := client.Get(ctx, key)

	stats.operations.Add(1)

	if !ok {
		stats.failures.Add(1)
		fmt.Printf("\n[TTL] UNEXPECTED: Key %s not found immediately after set\n", key)
		return
	}

	stats.successes.Add(1)
}
