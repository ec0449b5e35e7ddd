package memcache

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Serializer converts an arbitrary value to and from a Payload. Both
// serializers here claim every value they can encode (handled=true),
// including a plain string or []byte, which travels as-is with flags=0
// via the scalar passthrough below; they report handled=false only
// alongside an encode error. The client uses the Payload and error and
// does not consult handled.
type Serializer interface {
	Serialize(value any) (payload Payload, handled bool, err error)
	Deserialize(payload Payload) (value any, err error)
}

// scalarPassthrough handles the values every memcached client treats as
// already-wire-ready: strings and raw bytes need no encoding step and no
// flag bit, so a Get against a value written by a foreign client still
// comes back usable.
func scalarPassthrough(value any) (Payload, bool) {
	switch v := value.(type) {
	case string:
		return Payload{Data: []byte(v)}, true
	case []byte:
		return Payload{Data: v}, true
	default:
		return Payload{}, false
	}
}

// StructuredSerializer encodes values with encoding/gob and marks them
// with FlagSerialized. It is the default Serializer: gob requires no
// schema and round-trips exported struct fields without extra ceremony,
// matching what callers already get from the standard library.
type StructuredSerializer struct{}

var _ Serializer = StructuredSerializer{}

func (StructuredSerializer) Serialize(value any) (Payload, bool, error) {
	if p, ok := scalarPassthrough(value); ok {
		return p, true, nil
	}
	if value == nil {
		return Payload{}, false, fmt.Errorf("memcache: gob encode: nil value")
	}
	// Encoding through a pointer to the interface puts the registered
	// concrete type name on the wire, so Deserialize can decode into an
	// untyped any and get the same type back.
	gob.Register(value)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return Payload{}, false, fmt.Errorf("memcache: gob encode: %w", err)
	}
	return Payload{Data: buf.Bytes(), Flags: FlagSerialized}, true, nil
}

func (StructuredSerializer) Deserialize(p Payload) (any, error) {
	if p.Flags&FlagSerialized == 0 {
		return p.Data, nil
	}
	var value any
	if err := gob.NewDecoder(bytes.NewReader(p.Data)).Decode(&value); err != nil {
		return nil, fmt.Errorf("memcache: gob decode: %w", err)
	}
	return value, nil
}

// JSONSerializer encodes values with encoding/json and marks them with
// FlagJSON. Unlike StructuredSerializer it only round-trips values a
// caller deserializes into a concrete type of their own choosing:
// Deserialize returns the undecoded JSON bytes as a json.RawMessage for
// FlagJSON payloads rather than a decoded any, since json.Unmarshal into an untyped any loses numeric precision
// and struct identity that gob preserves natively.
type JSONSerializer struct{}

var _ Serializer = JSONSerializer{}

func (JSONSerializer) Serialize(value any) (Payload, bool, error) {
	if p, ok := scalarPassthrough(value); ok {
		return p, true, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return Payload{}, false, fmt.Errorf("memcache: json encode: %w", err)
	}
	return Payload{Data: data, Flags: FlagJSON}, true, nil
}

func (JSONSerializer) Deserialize(p Payload) (any, error) {
	if p.Flags&FlagJSON == 0 {
		return p.Data, nil
	}
	return json.RawMessage(p.Data), nil
}
