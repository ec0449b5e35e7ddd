package memcache

import "github.com/relaycache/memcache/protocol"

// Payload is the unit exchanged between the Serializer, Compressor and the
// protocol Driver: an opaque byte sequence plus the flag word stored
// alongside it on the server. It is a type alias for protocol.Payload so
// the wire layer and the value layer agree on one representation without
// either package importing the other's concerns.
type Payload = protocol.Payload

// Flag bit assignments. Bits are OR-combined by whichever transformations
// were applied to a value before it was stored; a reader undoes them in
// reverse order (decompress, then deserialize). Two serializers must never
// claim the same bit — the bit is how a reader knows which one to use.
const (
	// FlagSerialized marks a value encoded by the structured (gob)
	// Serializer.
	FlagSerialized uint32 = 1 << 0

	// FlagGzip marks a value compressed by the gzip Compressor.
	FlagGzip uint32 = 1 << 1

	// FlagJSON marks a value encoded by the JSON Serializer.
	FlagJSON uint32 = 1 << 2
)
