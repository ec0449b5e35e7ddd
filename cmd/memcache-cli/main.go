package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/relaycache/memcache"
	"github.com/relaycache/memcache/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11211", "memcache server address (repeat via comma-separated list)")
	binary := flag.Bool("binary", false, "use the binary protocol instead of text")
	flag.Parse()

	fmt.Println("Memcache CLI")
	fmt.Println("============")
	fmt.Println("Commands: get <key>, set <key> <value> [ttl], delete <key>, mget <k1> <k2> ..., incr/decr <key> [delta], stats, version, quit")
	fmt.Println()

	var servers []memcache.ServerEntry
	for _, a := range strings.Split(*addr, ",") {
		servers = append(servers, memcache.Server(strings.TrimSpace(a)))
	}

	cfg := memcache.Config{Servers: servers}
	if *binary {
		cfg.Protocol = protocol.Binary{}
	}

	client, err := memcache.NewClient(cfg)
	if err != nil {
		fmt.Printf("failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		ctx := context.Background()
		switch strings.ToLower(parts[0]) {
		case "get":
			if len(parts) != 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			handleGet(ctx, client, parts[1])

		case "set":
			if len(parts) < 3 || len(parts) > 4 {
				fmt.Println("usage: set <key> <value> [ttl_seconds]")
				continue
			}
			var ttl int
			if len(parts) == 4 {
				ttl, err = strconv.Atoi(parts[3])
				if err != nil {
					fmt.Printf("invalid ttl: %v\n", err)
					continue
				}
			}
			handleSet(ctx, client, parts[1], parts[2], int32(ttl))

		case "delete", "del":
			if len(parts) != 2 {
				fmt.Println("usage: delete <key>")
				continue
			}
			handleDelete(ctx, client, parts[1])

		case "mget", "multi-get":
			if len(parts) < 2 {
				fmt.Println("usage: mget <k1> <k2> ...")
				continue
			}
			handleMultiGet(ctx, client, parts[1:])

		case "incr", "decr":
			if len(parts) < 2 || len(parts) > 3 {
				fmt.Println("usage: incr|decr <key> [delta]")
				continue
			}
			delta := uint64(1)
			if len(parts) == 3 {
				d, parseErr := strconv.ParseUint(parts[2], 10, 64)
				if parseErr != nil {
					fmt.Printf("invalid delta: %v\n", parseErr)
					continue
				}
				delta = d
			}
			handleArithmetic(ctx, client, strings.ToLower(parts[0]) == "incr", parts[1], delta)

		case "stats":
			handleStats(ctx, client)

		case "version":
			handleVersion(ctx, client)

		case "quit", "exit":
			fmt.Println("bye")
			return

		default:
			fmt.Printf("unknown command %q\n", parts[0])
		}
	}
}

func handleGet(ctx context.Context, client *memcache.Client, key string) {
	value, ok := client.Get(ctx, key)
	if !ok {
		fmt.Println("(miss)")
		return
	}
	fmt.Printf("%v\n", value)
}

func handleSet(ctx context.Context, client *memcache.Client, key, value string, ttl int32) {
	ok, err := client.Set(ctx, key, value, ttl)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(storedLabel(ok))
}

func handleDelete(ctx context.Context, client *memcache.Client, key string) {
	ok, err := client.Delete(ctx, key)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	fmt.Println("deleted")
}

func handleMultiGet(ctx context.Context, client *memcache.Client, keys []string) {
	values, err := client.GetMulti(ctx, keys)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, key := range keys {
		if v, ok := values[key]; ok {
			fmt.Printf("  %s: %v\n", key, v)
		} else {
			fmt.Printf("  %s: <miss>\n", key)
		}
	}
	fmt.Printf("retrieved %d of %d keys\n", len(values), len(keys))
}

func handleArithmetic(ctx context.Context, client *memcache.Client, incr bool, key string, delta uint64) {
	var value uint64
	var ok bool
	if incr {
		value, ok = client.Incr(ctx, key, delta)
	} else {
		value, ok = client.Decr(ctx, key, delta)
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	fmt.Println(value)
}

func handleStats(ctx context.Context, client *memcache.Client) {
	perServer, err := client.ServerStats(ctx, "")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for addr, stats := range perServer {
		fmt.Printf("%s:\n", addr)
		for k, v := range stats {
			fmt.Printf("  %s = %s\n", k, v)
		}
	}
}

func handleVersion(ctx context.Context, client *memcache.Client) {
	versions, err := client.Version(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for addr, v := range versions {
		fmt.Printf("%s: %s\n", addr, v)
	}
}

func storedLabel(ok bool) string {
	if ok {
		return "stored"
	}
	return "not stored"
}
