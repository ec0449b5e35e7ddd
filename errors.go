package memcache

import "errors"

// Sentinel errors surfaced through a Handler's err parameter (or a
// synchronous method's error return). Most of the error kinds this
// client distinguishes internally — invalid argument, no route, a
// well-formed server rejection, a malformed reply — resolve silently to
// the command's default result with no visible error, exactly as
// documented per command below; only a genuinely durable failure
// surfaces one of these.
var (
	// ErrNoServers is returned by Client.Connect when no servers are
	// configured.
	ErrNoServers = errors.New("memcache: no servers available")

	// ErrConnectFatal is delivered to every request failed by a
	// Connection's fail cascade: a socket error other than a transient
	// timeout or a broken pipe, or the 5th consecutive connect timeout.
	// Unlike the other silent error kinds, this one is disclosed: a
	// durable server outage is the one condition a Go caller should be
	// able to branch on without polling Stats.
	ErrConnectFatal = errors.New("memcache: connection failed permanently")

	// ErrReentrantSync is returned when a synchronous call is attempted
	// from inside the completion handler of another call running on the
	// same Connection goroutine. The library detects this via context and
	// fails loudly instead of deadlocking that goroutine.
	ErrReentrantSync = errors.New("memcache: synchronous call attempted from inside a completion handler")

	// ErrClientClosed is delivered to every request still queued when
	// Disconnect is called.
	ErrClientClosed = errors.New("memcache: client is closed")
)
