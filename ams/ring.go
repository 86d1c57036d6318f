package ams

import "sync/atomic"

// RingBuffer is a single-producer single-consumer byte ring sized for
// notification bursts. The producer (the AmsConnection reader goroutine)
// only ever advances the write cursor; the consumer (a dispatcher worker)
// only ever advances the read cursor. Both cursors are atomic so the two
// goroutines never need a lock between them.
type RingBuffer struct {
	buf      []byte
	writeCur atomic.Uint64
	readCur  atomic.Uint64
}

// NewRingBuffer allocates a RingBuffer with the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Capacity returns the ring's total byte capacity.
func (r *RingBuffer) Capacity() int { return len(r.buf) }

// BytesUsed returns the number of unread bytes currently in the ring.
func (r *RingBuffer) BytesUsed() int {
	return int(r.writeCur.Load() - r.readCur.Load())
}

// BytesFree returns the number of bytes that can still be written without
// the producer overtaking the consumer.
func (r *RingBuffer) BytesFree() int {
	return len(r.buf) - r.BytesUsed()
}

// WriteChunk returns the largest contiguous span the producer can write
// into, starting at the current write cursor, without wrapping around the
// end of the backing array. The producer calls this
// repeatedly, writing into the slice it returns and calling Write(n) to
// advance, until the whole incoming frame has been copied in.
func (r *RingBuffer) WriteChunk() []byte {
	size := len(r.buf)
	free := r.BytesFree()
	if free == 0 {
		return nil
	}
	pos := int(r.writeCur.Load() % uint64(size))
	span := size - pos
	if span > free {
		span = free
	}
	return r.buf[pos : pos+span]
}

// Write advances the write cursor by n bytes, which the caller must
// already have copied into the slice most recently returned by
// WriteChunk.
func (r *RingBuffer) Write(n int) {
	r.writeCur.Add(uint64(n))
}

// ReadChunk returns the maximum contiguous span of unread bytes starting
// at the current read cursor, mirroring WriteChunk for the consumer side.
func (r *RingBuffer) ReadChunk() []byte {
	size := len(r.buf)
	used := r.BytesUsed()
	if used == 0 {
		return nil
	}
	pos := int(r.readCur.Load() % uint64(size))
	span := size - pos
	if span > used {
		span = used
	}
	return r.buf[pos : pos+span]
}

// Read advances the read cursor by n bytes, which the caller must already
// have consumed from the slice most recently returned by ReadChunk.
func (r *RingBuffer) Read(n int) {
	r.readCur.Add(uint64(n))
}

// ChunkAt returns a contiguous span of unread bytes starting at logical
// offset off past the current read cursor, bounded by both the end of the
// backing array and the number of unread bytes beyond off. The dispatcher
// worker uses this to peek at notification-frame headers before deciding
// how many bytes to consume, without disturbing the read cursor.
func (r *RingBuffer) ChunkAt(off int) []byte {
	size := len(r.buf)
	used := r.BytesUsed()
	if off >= used {
		return nil
	}
	pos := int((r.readCur.Load() + uint64(off)) % uint64(size))
	span := size - pos
	remaining := used - off
	if span > remaining {
		span = remaining
	}
	return r.buf[pos : pos+span]
}
