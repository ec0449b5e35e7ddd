package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/relaycache/memcache/tests/metrics"
	"github.com/relaycache/memcache/tests/scenarios"
	"github.com/relaycache/memcache/tests/testutils"
	"github.com/relaycache/memcache/tests/workload"
)

func main() {
	// Command-line flags
	scenarioName := flag.String("scenario", "", "Specific scenario to run (default: continuous workload)")
	runs := flag.Int("runs", 0, "Number of scenario runs (0 = continuous)")
	concurrency := flag.Int("concurrency", 100, "Number of concurrent workers")
	metricsInterval := flag.Duration("metrics-interval", 2*time.Second, "How often to print metrics")
	listScenarios := flag.Bool("list", false, "List available scenarios and exit")
	workloadName := flag.String("workload", "mixed", "Workload pattern to use")

	flag.Parse()

	// List scenarios if requested
	if *listScenarios {
		printScenarios()
		return
	}

	fmt.Println("========================================")
	fmt.Println("  Memcache Reliability Test Runner")
	fmt.Println("========================================")
	fmt.Printf("Concurrency: %d workers\n", *concurrency)
	fmt.Printf("Workload: %s\n", *workloadName)
	if *scenarioName != "" {
		fmt.Printf("Scenario: %s\n", *scenarioName)
		if *runs > 0 {
			fmt.Printf("Runs: %d\n", *runs)
		} else {
			fmt.Println("Runs: Continuous (Ctrl+C to stop)")
		}
	} else {
		fmt.Println("Scenario: None (workload only)")
	}
	fmt.Println("========================================")
	fmt.Println()

	// Setup toxiproxy
	fmt.Println("[Setup] Initializing toxiproxy...")
	toxiConfig := testutils.DefaultToxiproxyConfig()
	_, proxies, err := testutils.SetupToxiproxy(toxiConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up toxiproxy: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure to run: docker compose up -d\n")
		os.Exit(1)
	}
	defer testutils.CleanupToxiproxy(proxies)

	// Setup memcache client
	fmt.Println("[Setup] Creating memcache client...")
	clientConfig := testutils.DefaultMemcacheClientConfig()

	client, err := testutils.SetupMemcacheClient(clientConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating client: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	// Wait for client to be healthy
	ctx := context.Background()
	if err := testutils.WaitForHealthy(ctx, client); err != nil {
		fmt.Fprintf(os.Stderr, "Error waiting for client health: %v\n", err)
		os.Exit(1)
	}

	// Get workload
	wl, err := workload.Get(*workloadName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading workload: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("[Setup] Workload: %s - %s\n", wl.Name(), wl.Description())

	// Create workload runner
	runner := workload.NewRunner(client, wl, *concurrency)

	// Create metrics collector
	collector := metrics.NewCollector(client, runner, *metricsInterval)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n[Main] Received interrupt, shutting down...")
		cancel()
	}()

	// Start workload runner
	fmt.Printf("\n[Main] Starting workload with %d workers\n", *concurrency)
	go func() {
		if err := runner.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Workload error: %v\n", err)
		}
	}()

	// Start metrics collector
	go collector.Start(ctx)

	metricsTicker := time.NewTicker(*metricsInterval)
	defer metricsTicker.Stop()

	// Run scenario if specified
	if *scenarioName != "" {
		// Wait a bit for workload to stabilize
		fmt.Println("[Main] Letting workload stabilize for 5s...")
		time.Sleep(5 * time.Second)

		scenario, err := scenarios.Get(*scenarioName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}

		// Run scenario loop
		runCount := 1
		for {
			if *runs > 0 {
				fmt.Printf("\n[Main] Starting scenario run %d/%d: %s\n", runCount, *runs, scenario.Description())
			} else {
				fmt.Printf("\n[Main] Starting scenario run %d: %s\n", runCount, scenario.Description())
			}
			fmt.Println("========================================")

			err := scenario.Run(ctx, proxies)

			fmt.Println("========================================")
			if err != nil && err != context.Canceled {
				fmt.Fprintf(os.Stderr, "Scenario run %d error: %v\n", runCount, err)
			} else if err == context.Canceled {
				fmt.Println("[Main] Scenario canceled")
				break
			} else {
				fmt.Printf("[Main] Scenario run %d complete\n", runCount)
			}

			// Check if we should continue
			if *runs > 0 && runCount >= *runs {
				fmt.Printf("[Main] All %d scenario runs complete\n", *runs)
				cancel()
				break
			}

			runCount++

			// Brief pause between runs
			fmt.Println("[Main] Pausing 2s before next run...")
			select {
			case <-ctx.Done():
				goto done
			case <-time.After(2 * time.Second):
			}
		}

		// Continue printing metrics after scenarios complete
		if *runs == 0 {
			fmt.Println("[Main] Continuing workload (Ctrl+C to stop)...")
		}
		for {
			select {
			case <-ctx.Done():
				goto done
			case <-metricsTicker.C:
				collector.PrintLatest()
			}
		}
	} else {
		// No scenario - just run workload and print metrics
		for {
			select {
			case <-ctx.Done():
				goto done
			case <-metricsTicker.C:
				collector.PrintLatest()
			}
		}
	}

done:
	// Print final summary
	time.Sleep(500 * time.Millisecond) // Let final metrics be collected
	collector.PrintSummary()

	fmt.Println("\n[Main] Test complete")
}

func printScenarios() {
	fmt.Println("Available Scenarios:")
	fmt.Println("====================")

	allScenarios := scenarios.All()
	names := make([]string, 0, len(allScenarios))
	for name := range allScenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := allScenarios[name]
		fmt.Printf("  %-25s %s\n", name, s.Description())
	}

	fmt.Println("\nAvailable Workloads:")
	fmt.Println("====================")

	allWorkloads := workload.All()
	workloadNames := make([]string, 0, len(allWorkloads))
	for name := range allWorkloads {
		workloadNames = append(workloadNames, name)
	}
	sort.Strings(workloadNames)

	for _, name := range workloadNames {
		w := allWorkloads[name]
		fmt.Printf("  %-25s %s\n", name, w.Description())
	}
}
