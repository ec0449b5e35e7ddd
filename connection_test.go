package memcache

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycache/memcache/internal/testutils"
	"github.com/relaycache/memcache/protocol"
)

// dialSequence hands out one mock net.Conn per dial attempt, in order, so
// a test can script exactly what each successive reconnect sees on the
// wire. Calls past the end of the sequence return errExhausted.
type dialSequence struct {
	conns []net.Conn
	i     int
}

var errExhausted = &net.OpError{Op: "dial", Err: context.DeadlineExceeded}

func (d *dialSequence) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.i >= len(d.conns) {
		return nil, errExhausted
	}
	conn := d.conns[d.i]
	d.i++
	return conn, nil
}

// awaitResult blocks on a completion channel for a bounded time so a
// stuck dispatch fails the test instead of hanging the suite.
func awaitResult[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request completion")
		var zero T
		return zero
	}
}

type completion struct {
	result any
	err    error
}

func storeRequest(key string, payload Payload) (*request, chan completion) {
	done := make(chan completion, 1)
	return &request{
		kind:          kindStore,
		verb:          protocol.VerbSet,
		key:           dispatchKey{real: key},
		payload:       payload,
		defaultResult: false,
		complete: func(result any, err error) {
			done <- completion{result, err}
		},
	}, done
}

func getRequest(key string, decode func(Payload) (any, error)) (*request, chan completion) {
	done := make(chan completion, 1)
	return &request{
		kind:          kindGet,
		key:           dispatchKey{real: key},
		decode:        decode,
		defaultResult: nil,
		complete: func(result any, err error) {
			done <- completion{result, err}
		},
	}, done
}

func rawPayloadDecode(p Payload) (any, error) { return p.Data, nil }

func versionRequest() (*request, chan completion) {
	done := make(chan completion, 1)
	return &request{
		kind:          kindVersion,
		defaultResult: "",
		complete: func(result any, err error) {
			done <- completion{result, err}
		},
	}, done
}

func TestConnection_SuccessfulDispatch(t *testing.T) {
	server := testutils.NewConnectionMock("STORED\r\n")
	seq := &dialSequence{conns: []net.Conn{server}}

	c := NewConnection("mock:11211", protocol.Text{}, noopBreaker{}, noopLogger{}, WithDialFunc(seq.dial))
	defer c.Disconnect()

	req, done := storeRequest("foo", Payload{Data: []byte("bar")})
	c.enqueue(req)

	got := awaitResult(t, done)
	require.NoError(t, got.err)
	assert.Equal(t, true, got.result)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Dials)
	assert.Equal(t, uint64(1), stats.RequestsDone)
	assert.Equal(t, StateConnected, c.State())
}

func TestConnection_BrokenPipeReconnectsAndReplays(t *testing.T) {
	// The first dial's peer closes without ever writing a reply: the
	// client's readLine sees io.EOF, which isBrokenPipe treats as a
	// reconnect-and-replay case rather than a fail cascade.
	deadServer := testutils.NewConnectionMock()
	liveServer := testutils.NewConnectionMock("STORED\r\n")
	seq := &dialSequence{conns: []net.Conn{deadServer, liveServer}}

	c := NewConnection("mock:11211", protocol.Text{}, noopBreaker{}, noopLogger{}, WithDialFunc(seq.dial))
	defer c.Disconnect()

	req, done := storeRequest("foo", Payload{Data: []byte("bar")})
	c.enqueue(req)

	got := awaitResult(t, done)
	require.NoError(t, got.err)
	assert.Equal(t, true, got.result)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Dials)
	assert.Equal(t, uint64(1), stats.Reconnects)
	assert.Equal(t, uint64(1), stats.RequestsDone)
}

func TestConnection_MalformedResponseFailsOneRequestWithoutCascading(t *testing.T) {
	// Declared size 5 but the next 2 bytes aren't "\r\n": the suffix check
	// in protocol.Text.Get fails and the driver returns ErrFramingLost.
	malformed := testutils.NewConnectionMock("VALUE foo 0 5\r\nabcdeXY")
	liveServer := testutils.NewConnectionMock("STORED\r\n")
	seq := &dialSequence{conns: []net.Conn{malformed, liveServer}}

	c := NewConnection("mock:11211", protocol.Text{}, noopBreaker{}, noopLogger{}, WithDialFunc(seq.dial))
	defer c.Disconnect()

	badReq, badDone := getRequest("foo", rawPayloadDecode)
	c.enqueue(badReq)
	gotBad := awaitResult(t, badDone)
	assert.NoError(t, gotBad.err)
	assert.Nil(t, gotBad.result)

	goodReq, goodDone := storeRequest("bar", Payload{Data: []byte("baz")})
	c.enqueue(goodReq)
	gotGood := awaitResult(t, goodDone)
	require.NoError(t, gotGood.err)
	assert.Equal(t, true, gotGood.result)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Dials)
	assert.Equal(t, uint64(1), stats.Reconnects)
	assert.Equal(t, uint64(1), stats.RequestsDone)
}

func TestConnection_UnrecognizedReplyFailsOneRequestWithoutCascading(t *testing.T) {
	// "garbage" is a fully-read line that matches no known reply keyword:
	// protocol.ErrInvalidResponse, not protocol.ErrFramingLost. The line is
	// consumed up to its trailing "\r\n", so the stream position is still
	// trustworthy, but dispatch tears the connection down anyway rather than
	// trying to keep using a handle whose command/reply pairing it no longer
	// trusts; the request fails alone and the rest of the queue gets a fresh
	// connection, the same as a malformed Get reply.
	garbled := testutils.NewConnectionMock("garbage\r\n")
	liveServer := testutils.NewConnectionMock("STORED\r\n")
	seq := &dialSequence{conns: []net.Conn{garbled, liveServer}}

	c := NewConnection("mock:11211", protocol.Text{}, noopBreaker{}, noopLogger{}, WithDialFunc(seq.dial))
	defer c.Disconnect()

	badReq, badDone := versionRequest()
	c.enqueue(badReq)
	gotBad := awaitResult(t, badDone)
	assert.NoError(t, gotBad.err)
	assert.Equal(t, "", gotBad.result)

	goodReq, goodDone := storeRequest("bar", Payload{Data: []byte("baz")})
	c.enqueue(goodReq)
	gotGood := awaitResult(t, goodDone)
	require.NoError(t, gotGood.err)
	assert.Equal(t, true, gotGood.result)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Dials)
	assert.Equal(t, uint64(1), stats.Reconnects)
	assert.Equal(t, uint64(1), stats.RequestsDone)
}

// timeoutError is a net.Error whose Timeout() is always true, standing in
// for a dial that keeps exceeding Connection.dialTimeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestConnection_FatalFailCascadeAfterRepeatedDialTimeouts(t *testing.T) {
	// Block only the very first dial attempt, and only until req2 is
	// enqueued, so req2 is deterministically still queued (not yet
	// dispatched on its own) when req1's cascade of timeouts fails it.
	var once sync.Once
	dialStarted := make(chan struct{})
	ready := make(chan struct{})
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		once.Do(func() {
			close(dialStarted)
			<-ready
		})
		return nil, timeoutError{}
	}

	c := NewConnection("mock:11211", protocol.Text{}, noopBreaker{}, noopLogger{}, WithDialFunc(dial))
	defer c.Disconnect()

	req1, done1 := storeRequest("foo", Payload{Data: []byte("bar")})
	req2, done2 := storeRequest("baz", Payload{Data: []byte("qux")})
	c.enqueue(req1)

	select {
	case <-dialStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first dial attempt")
	}
	c.enqueue(req2)
	close(ready)

	got1 := awaitResult(t, done1)
	assert.ErrorIs(t, got1.err, ErrConnectFatal)
	assert.Equal(t, false, got1.result)

	got2 := awaitResult(t, done2)
	assert.ErrorIs(t, got2.err, ErrConnectFatal)
	assert.Equal(t, false, got2.result)

	stats := c.Stats()
	assert.Equal(t, uint64(maxConsecutiveTimeouts), stats.Timeouts)
	assert.Equal(t, uint64(1), stats.DialErrors)
}

func TestConnection_FatalFailCascadeOnNonTimeoutDialError(t *testing.T) {
	dialErr := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, net.ErrWriteToConnected
	}
	c := NewConnection("mock:11211", protocol.Text{}, noopBreaker{}, noopLogger{}, WithDialFunc(dialErr))
	defer c.Disconnect()

	req, done := storeRequest("foo", Payload{Data: []byte("bar")})
	c.enqueue(req)

	got := awaitResult(t, done)
	assert.ErrorIs(t, got.err, ErrConnectFatal)
	assert.Equal(t, false, got.result)

	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.Timeouts)
	assert.Equal(t, uint64(1), stats.DialErrors)
}

func TestConnection_DisconnectFailsQueuedRequests(t *testing.T) {
	// req1 gets dequeued and its dial blocks, which keeps the worker
	// goroutine busy inside dispatch; req2, enqueued right after, is
	// guaranteed to still be sitting in c.queue when Disconnect runs,
	// since drainQueue only dequeues one request at a time.
	block := make(chan struct{})
	dialStarted := make(chan struct{})
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		close(dialStarted)
		<-block
		return nil, net.ErrClosed
	}
	c := NewConnection("mock:11211", protocol.Text{}, noopBreaker{}, noopLogger{}, WithDialFunc(dial))

	req1, done1 := storeRequest("foo", Payload{Data: []byte("bar")})
	req2, done2 := storeRequest("baz", Payload{Data: []byte("qux")})
	c.enqueue(req1)

	// Wait until req1's dispatch is actually blocked inside dial before
	// enqueueing req2, so req2 is guaranteed to still be sitting in
	// c.queue (never dequeued) when Disconnect runs below.
	select {
	case <-dialStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial to start")
	}
	c.enqueue(req2)

	c.Disconnect()

	got2 := awaitResult(t, done2)
	assert.ErrorIs(t, got2.err, ErrClientClosed)
	assert.Equal(t, false, got2.result)

	close(block)

	got1 := awaitResult(t, done1)
	assert.ErrorIs(t, got1.err, ErrConnectFatal)
	assert.Equal(t, false, got1.result)

	// Enqueueing against an already-closed Connection resolves silently
	// with the request's default, matching invalid-argument-after-shutdown
	// handling: there's no visible error, since the caller closed it.
	req3, done3 := storeRequest("after-close", Payload{Data: []byte("x")})
	c.enqueue(req3)
	got3 := awaitResult(t, done3)
	assert.NoError(t, got3.err)
	assert.Equal(t, false, got3.result)
}
