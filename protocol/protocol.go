package protocol

import (
	"bufio"
	"errors"
	"net"
)

// ErrInvalidResponse is returned when a server reply cannot be parsed
// according to the expected wire format for the command sent.
var ErrInvalidResponse = errors.New("memcache: invalid response")

// Payload is the unit exchanged between the serializer, compressor and the
// protocol driver: an opaque byte sequence plus a 32-bit flag word the
// driver round-trips verbatim. The driver never inspects flag bit meaning;
// it only carries the word to and from the wire.
type Payload struct {
	Data  []byte
	Flags uint32
}

// Driver drives one memcached wire protocol (text or binary) over a
// connection's buffered reader/writer. A Driver implementation holds no
// per-connection state of its own — all of it lives in the bufio.ReadWriter
// passed to every call — so a single Driver value is shared by every
// Connection that speaks that protocol.
type Driver interface {
	// PrepareHandle runs on the raw socket immediately after dial and
	// before the Connection marks itself connected. Both the text and the
	// binary driver implement it as a no-op.
	PrepareHandle(conn net.Conn) error

	// Store implements set/add/replace/append/prepend. verb selects the
	// wire command. Returns stored=true iff the server accepted the item.
	Store(rw *bufio.ReadWriter, verb string, key string, payload Payload, exptime int32) (stored bool, err error)

	// Get fetches one or more keys in a single round trip. The returned
	// map contains only keys the server had a value for.
	Get(rw *bufio.ReadWriter, keys []string) (map[string]Payload, error)

	// Delete removes a key. Returns deleted=true iff the server reports
	// the key was present and removed.
	Delete(rw *bufio.ReadWriter, key string) (deleted bool, err error)

	// Incr/Decr adjust a numeric value stored as a decimal string. If the
	// key is missing and hasInitial is true, the server creates it with
	// value=initial and expiration=exptime; found reports whether the
	// operation produced a value. It is false when the key was missing and
	// hasInitial was false, and also when the item was not created despite
	// hasInitial (text: the fallback add replies NOT_STORED; binary: the
	// server replies KeyNotFound).
	Incr(rw *bufio.ReadWriter, key string, delta uint64, initial uint64, hasInitial bool, exptime int32) (value uint64, found bool, err error)
	Decr(rw *bufio.ReadWriter, key string, delta uint64, initial uint64, hasInitial bool, exptime int32) (value uint64, found bool, err error)

	// FlushAll invalidates all items on the server, after an optional
	// delay in seconds (0 = immediately).
	FlushAll(rw *bufio.ReadWriter, delay int32) error

	// Stats retrieves server statistics. name selects a stats sub-report;
	// empty means the general report.
	Stats(rw *bufio.ReadWriter, name string) (map[string]string, error)

	// Version retrieves the server's version string.
	Version(rw *bufio.ReadWriter) (string, error)
}
