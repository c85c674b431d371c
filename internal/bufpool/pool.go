// Package bufpool recycles fixed-size byte buffers for the transfer hot
// path, where a fresh allocation per wire record would dominate GC.
package bufpool

import "sync"

// Pool hands out buffers of one fixed size.
type Pool struct {
	size int
	pool sync.Pool
}

// New returns a pool of size-byte buffers. Panics when size is not
// positive, since a zero-length record buffer can never hold a record.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	return &Pool{
		size: size,
		pool: sync.Pool{
			New: func() any { return make([]byte, size) },
		},
	}
}

// Get returns a buffer of exactly the pool's size. Contents are
// whatever the previous user left behind.
func (p *Pool) Get() []byte {
	buf := p.pool.Get().([]byte)
	if cap(buf) < p.size {
		return make([]byte, p.size)
	}
	return buf[:p.size]
}

// Put gives a buffer back. Undersized buffers are dropped rather than
// poisoning the pool.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	p.pool.Put(buf[:cap(buf)])
}

// Size returns the length of buffers this pool hands out.
func (p *Pool) Size() int {
	return p.size
}
