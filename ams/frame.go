package ams

import "encoding/binary"

// defaultFrameCapacity matches AdsLib's AmsResponse, which allocates a
// 4096-byte frame for every reservation slot.
const defaultFrameCapacity = 4096

// Frame is an owned byte buffer with a capacity and a current window
// [start, end) into it. Protocol headers are built outermost-last by
// prepending: AoEHeader is prepended before AmsTcpHeader, so the AoEHeader
// ends up closer to the payload and the AmsTcpHeader ends up first on the
// wire.
type Frame struct {
	buf        []byte
	start, end int
}

// NewFrame allocates a Frame with the given capacity.
func NewFrame(capacity int) *Frame {
	return &Frame{buf: make([]byte, capacity), start: capacity, end: capacity}
}

// Capacity returns the total number of bytes the frame owns.
func (f *Frame) Capacity() int { return len(f.buf) }

// Len returns the number of bytes currently in the frame's window.
func (f *Frame) Len() int { return f.end - f.start }

// Bytes returns the frame's current window. The returned slice aliases the
// frame's backing array and is only valid until the next mutating call.
func (f *Frame) Bytes() []byte { return f.buf[f.start:f.end] }

// RawData returns the frame's backing array starting at its current end,
// the position a reader should write additional bytes into before calling
// Limit.
func (f *Frame) RawData() []byte { return f.buf[f.end:] }

// Append grows the window by appending p. It fails with ErrBufferOverflow
// if the space between the window's end and the frame's capacity cannot
// hold p; a freshly constructed frame, whose window sits at capacity, has
// no such space until Reset.
func (f *Frame) Append(p []byte) error {
	if f.end+len(p) > len(f.buf) {
		return NewError(BufferOverflowError, nil, "frame capacity exceeded on append")
	}
	copy(f.buf[f.end:], p)
	f.end += len(p)
	return nil
}

// Prepend writes n raw bytes immediately before the current start of the
// window, moving start left. It fails if start has insufficient room,
// mirroring AdsLib's Frame::prepend.
func (f *Frame) Prepend(p []byte) error {
	if f.start < len(p) {
		return NewError(MalformedFrameError, nil, "frame too small for prepend")
	}
	f.start -= len(p)
	copy(f.buf[f.start:], p)
	return nil
}

// PrependUint16 prepends a little-endian uint16.
func (f *Frame) PrependUint16(v uint16) error {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return f.Prepend(tmp[:])
}

// PrependUint32 prepends a little-endian uint32.
func (f *Frame) PrependUint32(v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return f.Prepend(tmp[:])
}

// Limit sets end := start + n, the operation used after reading n bytes
// into RawData(). Callers always Reset before receiving so start is 0 and
// the new window becomes exactly the n bytes just read.
func (f *Frame) Limit(n int) {
	f.end = f.start + n
}

// Clear sets end := start: the buffer becomes logically empty but retains
// its capacity.
func (f *Frame) Clear() { f.end = f.start }

// Reset returns the frame to the front of its backing array (start == end
// == 0), the state a reused frame needs before it can receive a fresh
// reply via RawData/Limit. This is distinct from a freshly constructed
// Frame, whose start and end sit at capacity so an immediate Prepend has
// room; Reset is what ResponseSlot.release calls between reuses.
func (f *Frame) Reset() {
	f.start = 0
	f.end = 0
}
