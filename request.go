package memcache

import (
	"bufio"
	"errors"
	"sync/atomic"

	"github.com/relaycache/memcache/protocol"
)

// kind identifies which wire operation a request performs. It is distinct
// from the protocol verb strings (VerbSet, ...) because get/delete/incr/
// decr/flush_all/stats/version have no "store verb" of their own.
type kind int

const (
	kindStore kind = iota
	kindGet
	kindDelete
	kindIncr
	kindDecr
	kindFlushAll
	kindStats
	kindVersion
)

// request is one dispatched operation against exactly one Connection. It
// is built by the Client façade (see submit in client.go) and is immutable
// from the point it is enqueued: the only mutation afterward is the
// exactly-once completion.
type request struct {
	kind kind
	verb string // store verb (VerbSet, ...), meaningful only when kind == kindStore

	key       dispatchKey
	payload   Payload
	exptime   int32
	delta     uint64
	initial   uint64
	hasInitial bool
	statsName string

	// decode turns a raw wire Payload back into an application value; set
	// by the Client for kindGet, nil otherwise.
	decode func(Payload) (any, error)

	defaultResult any
	complete      func(result any, err error)

	completed atomic.Bool
}

// finish invokes complete exactly once; later calls are no-ops. This is
// the single choke point that gives every request the "completion handler
// invoked exactly once" guarantee regardless of which code path reaches
// it first (success, rejection, or a connection-level failure cascade).
func (r *request) finish(result any, err error) {
	if r.completed.CompareAndSwap(false, true) {
		r.complete(result, err)
	}
}

// fail completes the request with its default result and no visible
// error, as required for invalid-argument, no-route, protocol-rejected,
// and protocol-malformed handling — all of which the spec says resolve
// silently.
func (r *request) fail() {
	r.finish(r.defaultResult, nil)
}

// failWith completes the request with its default result and a visible
// error. Used for a connect cascade failure (ErrConnectFatal) and for a
// request cut off by Disconnect (ErrClientClosed): these are disclosed to
// the caller as an error rather than resolved fully silently, since a Go caller expects a non-nil err to
// mean "something actually went wrong" for a condition this durable.
func (r *request) failWith(err error) {
	r.finish(r.defaultResult, err)
}

// run executes the request against an already-connected wire handle. The
// returned error is non-nil only for transport-level failures (I/O errors,
// a framing loss that leaves the stream desynced, or a reply that cannot
// be parsed, protocol.ErrInvalidResponse) that the caller
// (Connection) must treat as connection-fatal; a well-formed negative
// server reply is handled entirely inside run, which completes the
// request with its default and returns nil so the connection stays usable.
func (r *request) run(rw *bufio.ReadWriter, driver protocol.Driver) error {
	switch r.kind {
	case kindStore:
		return r.runStore(rw, driver)
	case kindGet:
		return r.runGet(rw, driver)
	case kindDelete:
		return r.runDelete(rw, driver)
	case kindIncr:
		return r.runArithmetic(rw, driver, true)
	case kindDecr:
		return r.runArithmetic(rw, driver, false)
	case kindFlushAll:
		return r.runFlushAll(rw, driver)
	case kindStats:
		return r.runStats(rw, driver)
	case kindVersion:
		return r.runVersion(rw, driver)
	default:
		r.fail()
		return nil
	}
}

func (r *request) runStore(rw *bufio.ReadWriter, driver protocol.Driver) error {
	stored, err := driver.Store(rw, r.verb, r.key.real, r.payload, r.exptime)
	if err := classifyAndFinishBool(r, stored, err); err != nil {
		return err
	}
	return nil
}

func (r *request) runGet(rw *bufio.ReadWriter, driver protocol.Driver) error {
	values, err := driver.Get(rw, []string{r.key.real})
	if err != nil {
		if transportErr, ok := asTransportError(err); ok {
			return transportErr
		}
		r.fail()
		return nil
	}
	payload, ok := values[r.key.real]
	if !ok {
		r.fail()
		return nil
	}
	value, decodeErr := r.decode(payload)
	if decodeErr != nil {
		r.fail()
		return nil
	}
	r.finish(value, nil)
	return nil
}

func (r *request) runDelete(rw *bufio.ReadWriter, driver protocol.Driver) error {
	deleted, err := driver.Delete(rw, r.key.real)
	return classifyAndFinishBool(r, deleted, err)
}

func (r *request) runArithmetic(rw *bufio.ReadWriter, driver protocol.Driver, incr bool) error {
	var value uint64
	var found bool
	var err error
	if incr {
		value, found, err = driver.Incr(rw, r.key.real, r.delta, r.initial, r.hasInitial, r.exptime)
	} else {
		value, found, err = driver.Decr(rw, r.key.real, r.delta, r.initial, r.hasInitial, r.exptime)
	}
	if err != nil {
		if transportErr, ok := asTransportError(err); ok {
			return transportErr
		}
		r.fail()
		return nil
	}
	if !found {
		r.fail()
		return nil
	}
	r.finish(value, nil)
	return nil
}

func (r *request) runFlushAll(rw *bufio.ReadWriter, driver protocol.Driver) error {
	err := driver.FlushAll(rw, int32(r.delta))
	if err != nil {
		if transportErr, ok := asTransportError(err); ok {
			return transportErr
		}
		r.fail()
		return nil
	}
	r.finish(true, nil)
	return nil
}

func (r *request) runStats(rw *bufio.ReadWriter, driver protocol.Driver) error {
	values, err := driver.Stats(rw, r.statsName)
	if err != nil {
		if transportErr, ok := asTransportError(err); ok {
			return transportErr
		}
		r.fail()
		return nil
	}
	r.finish(values, nil)
	return nil
}

func (r *request) runVersion(rw *bufio.ReadWriter, driver protocol.Driver) error {
	version, err := driver.Version(rw)
	if err != nil {
		if transportErr, ok := asTransportError(err); ok {
			return transportErr
		}
		r.fail()
		return nil
	}
	r.finish(version, nil)
	return nil
}

// classifyAndFinishBool handles the common shape shared by store/delete:
// a bool result, a server rejection that resolves to false, or a
// transport error that must propagate to the Connection.
func classifyAndFinishBool(r *request, ok bool, err error) error {
	if err != nil {
		if transportErr, isTransport := asTransportError(err); isTransport {
			return transportErr
		}
		r.fail()
		return nil
	}
	r.finish(ok, nil)
	return nil
}

// asTransportError reports whether err must propagate to the Connection
// rather than be completed with a default: every error except a
// well-formed negative reply, so I/O errors, protocol.ErrFramingLost and
// protocol.ErrInvalidResponse all propagate. A well-formed negative reply
// (protocol.ErrServerRejected) is not a transport error: the connection
// is still perfectly usable.
func asTransportError(err error) (error, bool) {
	if errors.Is(err, protocol.ErrServerRejected) {
		return nil, false
	}
	return err, true
}
