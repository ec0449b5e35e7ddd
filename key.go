package memcache

import "github.com/relaycache/memcache/protocol"

// dispatchKey is the internal representation of a key submitted to the
// façade: either a normal key that the Selector hashes, or a pre-hashed
// key that carries its own server index and bypasses hashing. Both forms
// are still subject to the wire key rules (1-250 bytes, no ASCII space).
type dispatchKey struct {
	real      string
	preHashed bool
	hashIndex uint32
}

func plainKey(key string) dispatchKey {
	return dispatchKey{real: key}
}

// HashedKey builds a pre-hashed key: hashIndex is used directly by the
// Selector instead of hashing realKey, while realKey is still what travels
// on the wire and is still validated against the normal key rules. Pass
// the result to the *Hashed command variants (GetHashed, SetHashed, ...).
func HashedKey(hashIndex uint32, realKey string) dispatchKey {
	return dispatchKey{real: realKey, preHashed: true, hashIndex: hashIndex}
}

func (k dispatchKey) validate() error {
	return protocol.ValidateKey(k.real)
}
