package protocol

import "errors"

// ErrServerRejected wraps a well-formed negative reply: the server
// understood the command and declined it (CLIENT_ERROR, SERVER_ERROR,
// ERROR, or a binary status other than success). The reply stream is
// still in a known state — the connection does not need to be torn down.
var ErrServerRejected = errors.New("memcache: server rejected request")

// ErrFramingLost wraps a parse failure that leaves the byte stream in an
// unknown state (for example, a VALUE block whose declared size doesn't
// match what followed). Unlike ErrInvalidResponse, recovering from this
// would require guessing how many bytes to discard, so the caller should
// treat it as fatal to the connection rather than just to the request.
var ErrFramingLost = errors.New("memcache: response framing lost")
