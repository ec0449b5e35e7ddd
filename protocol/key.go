package protocol

import "errors"

// ErrMalformedKey is returned by ValidateKey when a key is empty, too long,
// or contains a byte that memcached's text protocol treats as whitespace.
var ErrMalformedKey = errors.New("memcache: malformed key")

// ValidateKey checks a wire key against the memcached length and character
// rules: 1-250 bytes, no ASCII space or control characters.
func ValidateKey(key string) error {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return ErrMalformedKey
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return ErrMalformedKey
		}
	}
	return nil
}
