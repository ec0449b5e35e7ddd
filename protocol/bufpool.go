package protocol

import (
	"bytes"
	"sync"
)

// bufferPool is a sync.Pool of reusable scratch buffers. scratchPool below
// is not used by the drivers: Store and Get build each command in a fresh
// buffer per call.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(initialSize int) *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, initialSize))
			},
		},
	}
}

func (p *bufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

func (p *bufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	p.pool.Put(buf)
}

var scratchPool = newBufferPool(128)
