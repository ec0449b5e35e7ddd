package memcache

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycache/memcache/internal/testutils"
)

// newMockClient builds a Client with a single server backed by an
// in-memory mock connection preloaded with the given scripted wire
// replies, consumed in the order the client's commands issue them.
func newMockClient(t *testing.T, addr string, cfg Config, responses ...string) (*Client, *testutils.ConnectionMock) {
	t.Helper()
	mock := testutils.NewConnectionMock(responses...)
	cfg.Servers = Servers(addr)
	cfg.DialFunc = func(ctx context.Context, network, a string) (net.Conn, error) { return mock, nil }
	cfg.Logger = noopLogger{}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c, mock
}

func TestClient_SetGetDelete(t *testing.T) {
	c, _ := newMockClient(t, "a:11211", Config{},
		"STORED\r\n",
		"VALUE foo 0 5\r\nhello\r\n", "END\r\n",
		"DELETED\r\n",
	)
	ctx := context.Background()

	stored, err := c.Set(ctx, "foo", "hello", 0)
	require.NoError(t, err)
	assert.True(t, stored)

	val, found := c.Get(ctx, "foo")
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)

	deleted, err := c.Delete(ctx, "foo")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestClient_GetMiss(t *testing.T) {
	c, _ := newMockClient(t, "a:11211", Config{}, "END\r\n")
	val, found := c.Get(context.Background(), "missing")
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestClient_IncrWithInitialCreatesOnMiss(t *testing.T) {
	// The text driver's incr-with-initial path, on NOT_FOUND, falls back
	// to an add with the initial value — two round trips for one call.
	c, _ := newMockClient(t, "a:11211", Config{}, "NOT_FOUND\r\n", "STORED\r\n")

	value, found := c.IncrWithInitial(context.Background(), "counter", 1, 5, 0)
	assert.True(t, found)
	assert.Equal(t, uint64(5), value)
}

func TestClient_Incr(t *testing.T) {
	c, _ := newMockClient(t, "a:11211", Config{}, "43\r\n")
	value, found := c.Incr(context.Background(), "counter", 1)
	assert.True(t, found)
	assert.Equal(t, uint64(43), value)
}

func TestClient_NoServersConfigured(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	defer c.Disconnect()

	assert.ErrorIs(t, c.Connect(), ErrNoServers)

	val, found := c.Get(context.Background(), "anything")
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestClient_NamespacePrefixesWireKey(t *testing.T) {
	c, mock := newMockClient(t, "a:11211", Config{Namespace: "ns:"}, "STORED\r\n")
	_, err := c.Set(context.Background(), "foo", "bar", 0)
	require.NoError(t, err)
	assert.Contains(t, mock.GetWrittenRequest(), "set ns:foo ")
}

func TestClient_InvalidKeyResolvesToDefaultWithoutDispatch(t *testing.T) {
	c, mock := newMockClient(t, "a:11211", Config{}, "STORED\r\n")
	stored, err := c.Set(context.Background(), "bad key with spaces", "x", 0)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Empty(t, mock.GetWrittenRequest(), "an invalid key must never reach the wire")
}

func TestClient_ReentrantSyncCallIsRefused(t *testing.T) {
	c, _ := newMockClient(t, "a:11211", Config{}, "END\r\n")

	done := make(chan struct{})
	var innerErr error
	c.GetAsync("foo", func(ctx context.Context, result any, err error) {
		_, innerErr = c.Set(ctx, "bar", "baz", 0)
		close(done)
	})
	<-done
	assert.ErrorIs(t, innerErr, ErrReentrantSync)
}

// fixedSelector routes pre-assigned keys to specific servers and falls
// back to the first configured server otherwise, so multi-server tests
// can pin exactly which mock connection a key lands on without depending
// on the production hash functions.
type fixedSelector struct {
	servers []string
	assign  map[string]string
}

func (f *fixedSelector) SetServers(servers []ServerEntry) {
	f.servers = f.servers[:0]
	for _, s := range servers {
		f.servers = append(f.servers, s.Addr)
	}
}

func (f *fixedSelector) Select(key string) (string, bool) {
	if addr, ok := f.assign[key]; ok {
		return addr, true
	}
	if len(f.servers) == 0 {
		return "", false
	}
	return f.servers[0], true
}

func (f *fixedSelector) SelectIndex(idx uint32) (string, bool) {
	if len(f.servers) == 0 {
		return "", false
	}
	return f.servers[idx%uint32(len(f.servers))], true
}

func newMultiMockClient(t *testing.T, cfg Config, responses map[string][]string) *Client {
	t.Helper()
	mocks := make(map[string]*testutils.ConnectionMock, len(responses))
	addrs := make([]string, 0, len(responses))
	for addr, scripted := range responses {
		mocks[addr] = testutils.NewConnectionMock(scripted...)
		addrs = append(addrs, addr)
	}
	cfg.Servers = Servers(addrs...)
	cfg.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return mocks[addr], nil
	}
	cfg.Logger = noopLogger{}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func TestClient_GetMultiFansOutAcrossServers(t *testing.T) {
	sel := &fixedSelector{assign: map[string]string{"k1": "a:11211", "k2": "b:11211"}}
	c := newMultiMockClient(t, Config{Selector: sel}, map[string][]string{
		"a:11211": {"VALUE k1 0 3\r\nfoo\r\n", "END\r\n"},
		"b:11211": {"END\r\n"},
	})

	result, err := c.GetMulti(context.Background(), []string{"k1", "k2"})
	require.NoError(t, err)
	assert.Equal(t, []byte("foo"), result["k1"])
	_, hasMiss := result["k2"]
	assert.False(t, hasMiss, "a miss must be absent from the result map, not present with a nil value")
}

func TestClient_VersionBroadcastsToEveryServer(t *testing.T) {
	sel := &fixedSelector{}
	c := newMultiMockClient(t, Config{Selector: sel}, map[string][]string{
		"a:11211": {"VERSION 1.6.21\r\n"},
		"b:11211": {"VERSION 1.6.9\r\n"},
	})

	versions, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a:11211": "1.6.21",
		"b:11211": "1.6.9",
	}, versions)
}

func TestClient_SetServersReconfiguresConnectionTable(t *testing.T) {
	c, err := NewClient(Config{Servers: Servers("a:11211", "b:11211"), Logger: noopLogger{}})
	require.NoError(t, err)
	defer c.Disconnect()

	_, hasA := c.ConnectionStats()["a:11211"]
	_, hasB := c.ConnectionStats()["b:11211"]
	assert.True(t, hasA)
	assert.True(t, hasB)

	c.SetServers(Servers("b:11211", "c:11211"))

	stats := c.ConnectionStats()
	_, hasA = stats["a:11211"]
	_, hasB = stats["b:11211"]
	_, hasC := stats["c:11211"]
	assert.False(t, hasA, "a server removed from Config.Servers must be dropped")
	assert.True(t, hasB, "a server present in both lists keeps its Connection")
	assert.True(t, hasC)
}
