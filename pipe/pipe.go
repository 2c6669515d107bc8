// Package pipe provides non-blocking byte channels. A pipe has exactly one
// reader and one writer, and neither side ever blocks: operations that cannot
// make progress return ErrWouldBlock.
package pipe

import (
	"errors"
)

// ErrWouldBlock is returned when a read finds no data or a write finds no
// room.
var ErrWouldBlock = errors.New("pipe: operation would block")

// A Reader is the receiving end of a pipe.
type Reader interface {
	// TryRead reads the available bytes into p. It returns ErrWouldBlock if
	// the pipe is empty and io.EOF if the pipe is empty and the writer has
	// been closed.
	TryRead(p []byte) (int, error)
	Close() error
}

// A Writer is the sending end of a pipe.
type Writer interface {
	// TryWrite writes p into the pipe. Writes no longer than AtomicWriteMax
	// are all-or-nothing. It returns io.ErrClosedPipe if the reader has been
	// closed.
	TryWrite(p []byte) (int, error)
	Close() error
}

// AtomicWriteMax is the largest write that is guaranteed not to be split.
const AtomicWriteMax = 512

// DefaultCapacity is the capacity of in-memory pipes when none is given.
const DefaultCapacity = 64 * 1024

// A Factory creates pipes.
type Factory func() (Reader, Writer, error)

// MemFactory returns a Factory for in-memory pipes with the given capacity.
func MemFactory(capacity int) Factory {
	return func() (Reader, Writer, error) {
		r, w := New(capacity)
		return r, w, nil
	}
}

// OSFactory returns a Factory for operating system pipes.
func OSFactory() Factory {
	return NewOS
}
