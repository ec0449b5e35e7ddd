package memcache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"
)

// Compressor transforms a Payload's Data before it is written to the wire,
// and reverses that transform when a value comes back with the matching
// flag bit set. Compress is told which store command is in play because
// append/prepend must never compress: the server concatenates raw bytes,
// and an appended compressed fragment is not itself a valid compressed
// stream.
type Compressor interface {
	Compress(p Payload, verb string) (Payload, error)
	Decompress(p Payload) (Payload, error)
	Threshold() int
	SetThreshold(n int)
}

// GzipCompressor compresses values at or above its threshold, but only
// keeps the compressed form when it is at least 20% smaller than the
// original — otherwise the gzip framing overhead isn't worth the
// round-trip cost, and the value is stored uncompressed.
type GzipCompressor struct {
	mu        sync.RWMutex
	threshold int

	writerPool sync.Pool
}

var _ Compressor = (*GzipCompressor)(nil)

const defaultCompressThreshold = 10000

// minimumSavingsRatio is the fraction smaller a gzip result must be,
// relative to the original, before it is worth storing compressed.
const minimumSavingsRatio = 0.20

func NewGzipCompressor() *GzipCompressor {
	c := &GzipCompressor{threshold: defaultCompressThreshold}
	c.writerPool.New = func() any { return gzip.NewWriter(io.Discard) }
	return c
}

func (c *GzipCompressor) Threshold() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

func (c *GzipCompressor) SetThreshold(n int) {
	c.mu.Lock()
	c.threshold = n
	c.mu.Unlock()
}

func (c *GzipCompressor) Compress(p Payload, verb string) (Payload, error) {
	threshold := c.Threshold()
	if threshold <= 0 || verb == VerbAppend || verb == VerbPrepend {
		return p, nil
	}
	if len(p.Data) < threshold {
		return p, nil
	}

	var buf bytes.Buffer
	w := c.writerPool.Get().(*gzip.Writer)
	w.Reset(&buf)
	if _, err := w.Write(p.Data); err != nil {
		c.writerPool.Put(w)
		return Payload{}, fmt.Errorf("memcache: gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		c.writerPool.Put(w)
		return Payload{}, fmt.Errorf("memcache: gzip compress: %w", err)
	}
	c.writerPool.Put(w)

	if float64(buf.Len()) > float64(len(p.Data))*(1-minimumSavingsRatio) {
		return p, nil
	}

	return Payload{Data: buf.Bytes(), Flags: p.Flags | FlagGzip}, nil
}

func (c *GzipCompressor) Decompress(p Payload) (Payload, error) {
	if p.Flags&FlagGzip == 0 {
		return p, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(p.Data))
	if err != nil {
		return Payload{}, fmt.Errorf("memcache: gzip decompress: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, fmt.Errorf("memcache: gzip decompress: %w", err)
	}
	return Payload{Data: data, Flags: p.Flags &^ FlagGzip}, nil
}
