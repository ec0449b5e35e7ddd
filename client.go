package memcache

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/relaycache/memcache/protocol"
)

// Handler is a completion callback for an asynchronous operation. ctx
// carries a marker identifying that it is running from inside a
// completion handler; a synchronous call made with that ctx is refused
// with ErrReentrantSync instead of deadlocking the Connection goroutine
// that is invoking the handler.
type Handler func(ctx context.Context, result any, err error)

type reentrancyMarker struct{}

func withReentrancyMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, reentrancyMarker{}, true)
}

func inCompletionHandler(ctx context.Context) bool {
	v, _ := ctx.Value(reentrancyMarker{}).(bool)
	return v
}

// Config configures a Client. Zero-valued fields fall back to the
// defaults documented per field; only Servers is meaningfully required.
type Config struct {
	Servers []ServerEntry

	Namespace string
	// HashNamespace controls whether Namespace is included in the hash
	// input the Selector uses; nil means the spec default of true. A
	// pointer keeps "default true" distinguishable from an explicit
	// caller "false" without a sentinel bool value.
	HashNamespace *bool
	// CompressThreshold is bytes; 0 disables compression. Defaults to
	// 10000 when the Config is zero-valued (use a negative value to get
	// an actual 0/never-compress threshold).
	CompressThreshold int
	Preprocessor      func(key string) string

	Serializer Serializer
	Compressor Compressor
	Selector   Selector
	// Protocol selects the wire driver: TextProtocol (default) or
	// BinaryProtocol.
	Protocol protocol.Driver

	Logger Logger

	// Breaker builds a CircuitBreaker for one server address; nil
	// disables circuit breaking (every dial is attempted directly).
	Breaker func(addr string) CircuitBreaker

	DialFunc    func(ctx context.Context, network, addr string) (net.Conn, error)
	DialTimeout time.Duration

	// NoRehash and ReadOnly are accepted for configuration-source
	// compatibility and have no effect: this client never rehashes
	// around a failed server (Non-goal) and never refuses writes.
	NoRehash bool
	ReadOnly bool
}

// Client is the public façade: it owns the Connection table, the
// Selector, the wire Driver, and the Serializer/Compressor pair, and
// turns application calls into requests dispatched on the right
// Connection.
type Client struct {
	mu            sync.RWMutex
	namespace     string
	hashNamespace bool
	preprocessor  func(string) string
	compressor    Compressor

	serializer Serializer
	selector   Selector
	driver     protocol.Driver
	logger     Logger

	dialFunc       func(ctx context.Context, network, addr string) (net.Conn, error)
	dialTimeout    time.Duration
	breakerFactory func(addr string) CircuitBreaker

	connsMu sync.RWMutex
	conns   map[string]*Connection

	stats clientStatsCollector
}

// NewClient builds a Client from cfg and establishes its initial
// Connection table via SetServers.
func NewClient(cfg Config) (*Client, error) {
	hashNamespace := true
	if cfg.HashNamespace != nil {
		hashNamespace = *cfg.HashNamespace
	}

	serializer := cfg.Serializer
	if serializer == nil {
		serializer = StructuredSerializer{}
	}
	compressor := cfg.Compressor
	if compressor == nil {
		compressor = NewGzipCompressor()
	}
	if cfg.CompressThreshold != 0 {
		compressor.SetThreshold(cfg.CompressThreshold)
	}
	selector := cfg.Selector
	if selector == nil {
		selector = NewWeightedRingSelector()
	}
	driver := cfg.Protocol
	if driver == nil {
		driver = protocol.Text{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	dialFunc := cfg.DialFunc
	if dialFunc == nil {
		dialFunc = (&net.Dialer{}).DialContext
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}
	breakerFactory := cfg.Breaker
	if breakerFactory == nil {
		breakerFactory = func(string) CircuitBreaker { return noopBreaker{} }
	}

	c := &Client{
		namespace:      cfg.Namespace,
		hashNamespace:  hashNamespace,
		preprocessor:   cfg.Preprocessor,
		compressor:     compressor,
		serializer:     serializer,
		selector:       selector,
		driver:         driver,
		logger:         logger,
		dialFunc:       dialFunc,
		dialTimeout:    dialTimeout,
		breakerFactory: breakerFactory,
		conns:          make(map[string]*Connection),
	}
	c.SetServers(cfg.Servers)
	return c, nil
}

// SetServers reconfigures the server list: Connections for addresses no
// longer present are disconnected and dropped; Connections for new
// addresses are created. Existing Connections for addresses that remain
// are left untouched, in flight requests included.
func (c *Client) SetServers(servers []ServerEntry) {
	wanted := make(map[string]ServerEntry, len(servers))
	for _, s := range servers {
		wanted[s.Addr] = s
	}

	c.connsMu.Lock()
	var toClose []*Connection
	for addr, conn := range c.conns {
		if _, ok := wanted[addr]; !ok {
			toClose = append(toClose, conn)
			delete(c.conns, addr)
		}
	}
	for addr := range wanted {
		if _, ok := c.conns[addr]; ok {
			continue
		}
		c.conns[addr] = NewConnection(addr, c.driver, c.breakerFactory(addr), c.logger,
			WithDialTimeout(c.dialTimeout), WithDialFunc(c.dialFunc))
	}
	c.connsMu.Unlock()

	for _, conn := range toClose {
		conn.Disconnect()
	}

	c.selector.SetServers(servers)
}

// Connect validates that the Client has at least one server configured;
// Connections themselves dial lazily on first enqueue, so this exists to
// give callers an explicit, early "no servers" failure matching §6.
func (c *Client) Connect() error {
	c.connsMu.RLock()
	n := len(c.conns)
	c.connsMu.RUnlock()
	if n == 0 {
		return ErrNoServers
	}
	return nil
}

// Disconnect tears down every Connection, completing their queued and
// in-flight requests with their defaults.
func (c *Client) Disconnect() {
	c.connsMu.Lock()
	conns := c.conns
	c.conns = make(map[string]*Connection)
	c.connsMu.Unlock()
	for _, conn := range conns {
		conn.Disconnect()
	}
}

func (c *Client) Namespace() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namespace
}

func (c *Client) SetNamespace(ns string) {
	c.mu.Lock()
	c.namespace = ns
	c.mu.Unlock()
}

func (c *Client) HashNamespace() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hashNamespace
}

func (c *Client) SetHashNamespace(v bool) {
	c.mu.Lock()
	c.hashNamespace = v
	c.mu.Unlock()
}

func (c *Client) CompressThreshold() int {
	return c.compressor.Threshold()
}

func (c *Client) SetCompressThreshold(n int) {
	c.compressor.SetThreshold(n)
}

func (c *Client) SetPreprocessor(fn func(key string) string) {
	c.mu.Lock()
	c.preprocessor = fn
	c.mu.Unlock()
}

// Stats returns a snapshot of this Client's lifetime operation counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// ConnectionStats returns a snapshot of every Connection's stats, keyed
// by server address.
func (c *Client) ConnectionStats() map[string]ConnectionStats {
	c.connsMu.RLock()
	defer c.connsMu.RUnlock()
	out := make(map[string]ConnectionStats, len(c.conns))
	for addr, conn := range c.conns {
		out[addr] = conn.Stats()
	}
	return out
}

// BreakerStates returns the current circuit breaker state of every
// Connection, keyed by server address, for diagnostics and dashboards.
func (c *Client) BreakerStates() map[string]gobreaker.State {
	c.connsMu.RLock()
	defer c.connsMu.RUnlock()
	out := make(map[string]gobreaker.State, len(c.conns))
	for addr, conn := range c.conns {
		out[addr] = conn.BreakerState()
	}
	return out
}

func (c *Client) connectionFor(addr string) *Connection {
	c.connsMu.RLock()
	defer c.connsMu.RUnlock()
	return c.conns[addr]
}

func (c *Client) serverAddrs() []string {
	c.connsMu.RLock()
	defer c.connsMu.RUnlock()
	addrs := make([]string, 0, len(c.conns))
	for addr := range c.conns {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (c *Client) namespacedKey(realKey string) string {
	c.mu.RLock()
	ns := c.namespace
	c.mu.RUnlock()
	return ns + realKey
}

// resolveKey runs preprocess → validate → namespace → server selection
// for one dispatch key, returning the chosen server address or ok=false
// when the key is invalid or no server is configured for it — both of
// which the caller must treat as "complete with default", per §4.6.
func (c *Client) resolveKey(k dispatchKey) (addr string, wireKey string, ok bool) {
	realKey := k.real
	c.mu.RLock()
	preprocessor := c.preprocessor
	c.mu.RUnlock()
	if preprocessor != nil {
		realKey = preprocessor(realKey)
	}
	k.real = realKey

	if err := k.validate(); err != nil {
		return "", "", false
	}

	wireKey = c.namespacedKey(realKey)

	if k.preHashed {
		addr, ok = c.selector.SelectIndex(k.hashIndex)
		return addr, wireKey, ok
	}

	hashInput := realKey
	if c.HashNamespace() {
		hashInput = wireKey
	}
	addr, ok = c.selector.Select(hashInput)
	return addr, wireKey, ok
}

// submit builds and enqueues a single-key request, or invokes complete
// with defaultResult immediately when the key or server resolution fails.
func (c *Client) submit(k kind, verb string, dk dispatchKey, payload Payload, exptime int32,
	delta, initial uint64, hasInitial bool, statsName string,
	decode func(Payload) (any, error), defaultResult any, complete func(any, error)) {

	addr, wireKey, ok := c.resolveKey(dk)
	if !ok {
		complete(defaultResult, nil)
		return
	}
	conn := c.connectionFor(addr)
	if conn == nil {
		complete(defaultResult, nil)
		return
	}

	req := &request{
		kind:          k,
		verb:          verb,
		key:           dispatchKey{real: wireKey},
		payload:       payload,
		exptime:       exptime,
		delta:         delta,
		initial:       initial,
		hasInitial:    hasInitial,
		statsName:     statsName,
		decode:        decode,
		defaultResult: defaultResult,
		complete:      complete,
	}
	conn.enqueue(req)
}

func (c *Client) handlerComplete(h Handler) func(any, error) {
	return func(result any, err error) {
		if err != nil {
			c.stats.recordError()
		}
		h(withReentrancyMarker(context.Background()), result, err)
	}
}

// waitSync drives async to completion synchronously. It returns
// ErrReentrantSync instead of blocking when ctx shows the calling
// goroutine is already inside a completion handler's callback.
func (c *Client) waitSync(ctx context.Context, async func(Handler)) (any, error) {
	if inCompletionHandler(ctx) {
		return nil, ErrReentrantSync
	}
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	async(func(_ context.Context, result any, err error) {
		done <- outcome{result, err}
	})
	o := <-done
	return o.result, o.err
}

func (c *Client) encodeValue(value any, verb string) (Payload, error) {
	if verb == VerbAppend || verb == VerbPrepend {
		switch v := value.(type) {
		case string:
			return Payload{Data: []byte(v)}, nil
		case []byte:
			return Payload{Data: v}, nil
		default:
			return Payload{}, fmt.Errorf("memcache: %s requires a string or []byte value", verb)
		}
	}
	p, _, err := c.serializer.Serialize(value)
	if err != nil {
		return Payload{}, err
	}
	p, err = c.compressor.Compress(p, verb)
	if err != nil {
		return Payload{}, err
	}
	return p, nil
}

func (c *Client) decodeValue(p Payload) (any, error) {
	p, err := c.compressor.Decompress(p)
	if err != nil {
		return nil, err
	}
	return c.serializer.Deserialize(p)
}

// --- store commands (set/add/replace/append/prepend) ---

func (c *Client) storeAsync(verb string, key string, value any, exptime int32, handler Handler) {
	payload, err := c.encodeValue(value, verb)
	if err != nil {
		handler(context.Background(), false, err)
		return
	}
	c.stats.recordSet()
	c.submit(kindStore, verb, plainKey(key), payload, exptime, 0, 0, false, "", nil, false, c.handlerComplete(handler))
}

func (c *Client) store(ctx context.Context, verb, key string, value any, exptime int32) (bool, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.storeAsync(verb, key, value, exptime, h) })
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

func (c *Client) SetAsync(key string, value any, exptime int32, handler Handler) {
	c.storeAsync(VerbSet, key, value, exptime, handler)
}
func (c *Client) Set(ctx context.Context, key string, value any, exptime int32) (bool, error) {
	return c.store(ctx, VerbSet, key, value, exptime)
}

func (c *Client) AddAsync(key string, value any, exptime int32, handler Handler) {
	c.storeAsync(VerbAdd, key, value, exptime, handler)
}
func (c *Client) Add(ctx context.Context, key string, value any, exptime int32) (bool, error) {
	return c.store(ctx, VerbAdd, key, value, exptime)
}

func (c *Client) ReplaceAsync(key string, value any, exptime int32, handler Handler) {
	c.storeAsync(VerbReplace, key, value, exptime, handler)
}
func (c *Client) Replace(ctx context.Context, key string, value any, exptime int32) (bool, error) {
	return c.store(ctx, VerbReplace, key, value, exptime)
}

func (c *Client) AppendAsync(key string, value any, handler Handler) {
	c.storeAsync(VerbAppend, key, value, 0, handler)
}
func (c *Client) Append(ctx context.Context, key string, value any) (bool, error) {
	return c.store(ctx, VerbAppend, key, value, 0)
}

func (c *Client) PrependAsync(key string, value any, handler Handler) {
	c.storeAsync(VerbPrepend, key, value, 0, handler)
}
func (c *Client) Prepend(ctx context.Context, key string, value any) (bool, error) {
	return c.store(ctx, VerbPrepend, key, value, 0)
}

// SetHashed stores value at a pre-hashed key, bypassing the Selector's
// hash for server choice (see HashedKey).
func (c *Client) SetHashedAsync(key dispatchKey, value any, exptime int32, handler Handler) {
	payload, err := c.encodeValue(value, VerbSet)
	if err != nil {
		handler(context.Background(), false, err)
		return
	}
	c.stats.recordSet()
	c.submit(kindStore, VerbSet, key, payload, exptime, 0, 0, false, "", nil, false, c.handlerComplete(handler))
}
func (c *Client) SetHashed(ctx context.Context, key dispatchKey, value any, exptime int32) (bool, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.SetHashedAsync(key, value, exptime, h) })
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

// --- get ---

func (c *Client) GetAsync(key string, handler Handler) {
	c.getAsync(plainKey(key), handler)
}

func (c *Client) getAsync(key dispatchKey, handler Handler) {
	c.stats.recordGet()
	complete := func(result any, err error) {
		if result == nil {
			c.stats.recordMiss()
		} else {
			c.stats.recordHit()
		}
		c.handlerComplete(handler)(result, err)
	}
	c.submit(kindGet, "", key, Payload{}, 0, 0, 0, false, "", c.decodeValue, nil, complete)
}

// Get returns the stored value and true, or nil and false on a miss or
// any failure (invalid key, no route, or a transport error) — all of
// which resolve to the command's documented default of "nothing".
func (c *Client) Get(ctx context.Context, key string) (any, bool) {
	result, _ := c.waitSync(ctx, func(h Handler) { c.GetAsync(key, h) })
	return result, result != nil
}

func (c *Client) GetHashedAsync(key dispatchKey, handler Handler) {
	c.getAsync(key, handler)
}
func (c *Client) GetHashed(ctx context.Context, key dispatchKey) (any, bool) {
	result, _ := c.waitSync(ctx, func(h Handler) { c.getAsync(key, h) })
	return result, result != nil
}

// GetMultiAsync fans out one child Get per key; handler runs once with a
// map keyed by realKey containing only the keys that hit.
func (c *Client) GetMultiAsync(keys []string, handler Handler) {
	runMultiKey(keys, func(slot string, onChildDone func(bool, any)) {
		c.getAsync(plainKey(slot), func(_ context.Context, result any, _ error) {
			onChildDone(result != nil, result)
		})
	}, func(result map[string]any) {
		handler(withReentrancyMarker(context.Background()), result, nil)
	})
}

func (c *Client) GetMulti(ctx context.Context, keys []string) (map[string]any, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.GetMultiAsync(keys, h) })
	if err != nil {
		return nil, err
	}
	m, _ := result.(map[string]any)
	return m, nil
}

// --- delete ---

func (c *Client) DeleteAsync(key string, handler Handler) {
	c.stats.recordDelete()
	c.submit(kindDelete, "", plainKey(key), Payload{}, 0, 0, 0, false, "", nil, false, c.handlerComplete(handler))
}

func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.DeleteAsync(key, h) })
	if err != nil {
		return false, err
	}
	ok, _ := result.(bool)
	return ok, nil
}

func (c *Client) DeleteMultiAsync(keys []string, handler Handler) {
	runMultiKey(keys, func(slot string, onChildDone func(bool, any)) {
		c.DeleteAsync(slot, func(_ context.Context, result any, _ error) {
			ok, _ := result.(bool)
			onChildDone(true, ok)
		})
	}, func(result map[string]any) {
		handler(withReentrancyMarker(context.Background()), result, nil)
	})
}

func (c *Client) DeleteMulti(ctx context.Context, keys []string) (map[string]bool, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.DeleteMultiAsync(keys, h) })
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(result.(map[string]any)))
	for k, v := range result.(map[string]any) {
		out[k], _ = v.(bool)
	}
	return out, nil
}

// --- incr/decr ---

func (c *Client) incrDecrAsync(k kind, key string, delta uint64, initial uint64, hasInitial bool, exptime int32, handler Handler) {
	if k == kindIncr {
		c.stats.recordIncrement()
	} else {
		c.stats.recordDecrement()
	}
	c.submit(k, "", plainKey(key), Payload{}, exptime, delta, initial, hasInitial, "", nil, nil, c.handlerComplete(handler))
}

func (c *Client) IncrAsync(key string, delta uint64, handler Handler) {
	c.incrDecrAsync(kindIncr, key, delta, 0, false, 0, handler)
}
func (c *Client) Incr(ctx context.Context, key string, delta uint64) (uint64, bool) {
	result, _ := c.waitSync(ctx, func(h Handler) { c.IncrAsync(key, delta, h) })
	v, ok := result.(uint64)
	return v, ok
}

// IncrWithInitialAsync creates the key with initial if it does not exist,
// per the text/binary protocols' incr-with-initial-value behavior.
func (c *Client) IncrWithInitialAsync(key string, delta, initial uint64, exptime int32, handler Handler) {
	c.incrDecrAsync(kindIncr, key, delta, initial, true, exptime, handler)
}
func (c *Client) IncrWithInitial(ctx context.Context, key string, delta, initial uint64, exptime int32) (uint64, bool) {
	result, _ := c.waitSync(ctx, func(h Handler) { c.IncrWithInitialAsync(key, delta, initial, exptime, h) })
	v, ok := result.(uint64)
	return v, ok
}

func (c *Client) DecrAsync(key string, delta uint64, handler Handler) {
	c.incrDecrAsync(kindDecr, key, delta, 0, false, 0, handler)
}
func (c *Client) Decr(ctx context.Context, key string, delta uint64) (uint64, bool) {
	result, _ := c.waitSync(ctx, func(h Handler) { c.DecrAsync(key, delta, h) })
	v, ok := result.(uint64)
	return v, ok
}

func (c *Client) DecrWithInitialAsync(key string, delta, initial uint64, exptime int32, handler Handler) {
	c.incrDecrAsync(kindDecr, key, delta, initial, true, exptime, handler)
}
func (c *Client) DecrWithInitial(ctx context.Context, key string, delta, initial uint64, exptime int32) (uint64, bool) {
	result, _ := c.waitSync(ctx, func(h Handler) { c.DecrWithInitialAsync(key, delta, initial, exptime, h) })
	v, ok := result.(uint64)
	return v, ok
}

// --- broadcast commands: flush_all/stats/version ---

func (c *Client) broadcast(kindOf kind, statsName string, flushDelay int32, handler Handler) {
	var defaultResult any
	switch kindOf {
	case kindFlushAll:
		defaultResult = false
	case kindStats:
		defaultResult = map[string]string(nil)
	case kindVersion:
		defaultResult = ""
	}

	addrs := c.serverAddrs()
	runBroadcast(addrs, func(addr string, onChildDone func(bool, any)) {
		conn := c.connectionFor(addr)
		complete := func(result any, _ error) { onChildDone(true, result) }
		if conn == nil {
			complete(defaultResult, nil)
			return
		}
		req := &request{
			kind:          kindOf,
			delta:         uint64(flushDelay),
			statsName:     statsName,
			defaultResult: defaultResult,
			complete:      complete,
		}
		conn.enqueue(req)
	}, func(result map[string]any) {
		handler(withReentrancyMarker(context.Background()), result, nil)
	})
}

func (c *Client) FlushAllAsync(delay int32, handler Handler) {
	c.broadcast(kindFlushAll, "", delay, handler)
}
func (c *Client) FlushAll(ctx context.Context, delay int32) (map[string]bool, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.FlushAllAsync(delay, h) })
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(result.(map[string]any)))
	for k, v := range result.(map[string]any) {
		out[k], _ = v.(bool)
	}
	return out, nil
}

func (c *Client) StatsAsync(name string, handler Handler) {
	c.broadcast(kindStats, name, 0, handler)
}

// ServerStats issues a broadcast `stats` to every configured server,
// returning a map keyed by server address. Named distinctly from Stats
// (the client's own operation counters) to keep the two unrelated
// meanings apart.
func (c *Client) ServerStats(ctx context.Context, name string) (map[string]map[string]string, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.StatsAsync(name, h) })
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(result.(map[string]any)))
	for addr, v := range result.(map[string]any) {
		m, _ := v.(map[string]string)
		out[addr] = m
	}
	return out, nil
}

func (c *Client) VersionAsync(handler Handler) {
	c.broadcast(kindVersion, "", 0, handler)
}
func (c *Client) Version(ctx context.Context) (map[string]string, error) {
	result, err := c.waitSync(ctx, func(h Handler) { c.VersionAsync(h) })
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(result.(map[string]any)))
	for addr, v := range result.(map[string]any) {
		s, _ := v.(string)
		out[addr] = s
	}
	return out, nil
}
