package juliagate

// BufferPool recycles fixed-size byte slices across transport reads and
// writes. A buffered channel holds the idle buffers, so Get and Put need no
// locking and are safe for concurrent use.
type BufferPool struct {
	buffers chan []byte
	size    int
}

// NewBufferPool creates a pool holding up to count buffers of size bytes,
// all pre-allocated.
func NewBufferPool(size, count int) *BufferPool {
	bp := &BufferPool{
		buffers: make(chan []byte, count),
		size:    size,
	}
	for i := 0; i < count; i++ {
		bp.buffers <- make([]byte, size)
	}
	return bp
}

// Get takes a buffer from the pool, allocating a fresh one when the pool is
// empty. The returned slice has length and capacity equal to the pool size.
func (bp *BufferPool) Get() []byte {
	select {
	case buf := <-bp.buffers:
		return buf
	default:
	}
	return make([]byte, bp.size)
}

// Put hands a buffer back for reuse. Buffers whose capacity does not match
// the pool size are dropped, as is anything beyond the pool's capacity.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	select {
	case bp.buffers <- buf[:bp.size]:
	default:
	}
}
