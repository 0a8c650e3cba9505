package comm

import (
	"github.com/robotalks/coap.go/pkg/coap/msgs"
)

// Reassembler accumulates stream bytes in a fixed capacity buffer and
// detects complete frames.
type Reassembler struct {
	buf []byte
	off int
}

// NewReassembler creates a Reassembler.
func NewReassembler(capacity int) *Reassembler {
	return &Reassembler{buf: make([]byte, capacity)}
}

// Fill makes one read attempt into the free tail of the buffer.
// ErrWouldBlock from src is passed through.
func (r *Reassembler) Fill(src NonBlockingReader) (int, error) {
	if r.off >= len(r.buf) {
		return 0, nil
	}
	n, err := src.TryRead(r.buf[r.off:])
	r.off += n
	return n, err
}

// Write appends bytes, up to the free capacity.
func (r *Reassembler) Write(p []byte) (int, error) {
	n := copy(r.buf[r.off:], p)
	r.off += n
	if n < len(p) {
		return n, ErrFrameTooLarge
	}
	return n, nil
}

// Next returns the size of the complete frame at the front of the buffer,
// 0 if it is not complete yet. The buffer is reset on errors.
func (r *Reassembler) Next() (int, error) {
	size, err := msgs.FrameSize(r.buf[:r.off])
	if err != nil {
		r.Reset()
		return 0, err
	}
	if size > len(r.buf) {
		r.Reset()
		return 0, ErrFrameTooLarge
	}
	if size == 0 || size > r.off {
		return 0, nil
	}
	return size, nil
}

// Frame returns the first n buffered bytes.
// They are only valid until the next Consume.
func (r *Reassembler) Frame(n int) []byte {
	return r.buf[:n]
}

// Consume drops n bytes and moves the residual to the front.
func (r *Reassembler) Consume(n int) {
	if n >= r.off {
		r.off = 0
		return
	}
	copy(r.buf, r.buf[n:r.off])
	r.off -= n
}

// Buffered returns the number of valid bytes.
func (r *Reassembler) Buffered() int {
	return r.off
}

// Cap returns the capacity.
func (r *Reassembler) Cap() int {
	return len(r.buf)
}

// Reset drops all buffered bytes.
func (r *Reassembler) Reset() {
	r.off = 0
}
