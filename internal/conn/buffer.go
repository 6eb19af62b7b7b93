package conn

import "errors"

var ErrBufferFull = errors.New("buffer full")

// Buffer is a byte buffer that never grows past its capacity.
type Buffer struct {
	b []byte
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{b: make([]byte, 0, capacity)}
}

// Append adds all of p, or nothing if p does not fit.
func (b *Buffer) Append(p []byte) error {
	if len(p) > b.Available() {
		return ErrBufferFull
	}
	b.b = append(b.b, p...)
	return nil
}

func (b *Buffer) Len() int {
	return len(b.b)
}

func (b *Buffer) Cap() int {
	return cap(b.b)
}

// Available is the number of bytes that can still be appended.
func (b *Buffer) Available() int {
	return cap(b.b) - len(b.b)
}

// Bytes returns the buffered bytes. The slice is only valid until the next Reset.
func (b *Buffer) Bytes() []byte {
	return b.b
}

func (b *Buffer) Reset() {
	b.b = b.b[:0]
}
