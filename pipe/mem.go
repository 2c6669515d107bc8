package pipe

import (
	"io"
	"sync"

	"github.com/bassosimone/runtimex"
)

type memPipe struct {
	lock     sync.Mutex
	buf      []byte
	capacity int

	readerClosed bool
	writerClosed bool
}

// New creates an in-memory pipe that buffers up to capacity bytes.
func New(capacity int) (Reader, Writer) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	p := &memPipe{capacity: capacity}

	return &memReader{p: p}, &memWriter{p: p}
}

type memReader struct {
	p *memPipe
}

func (r *memReader) TryRead(b []byte) (int, error) {
	p := r.p
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.readerClosed {
		return 0, io.ErrClosedPipe
	}

	if len(p.buf) == 0 {
		if p.writerClosed {
			return 0, io.EOF
		}

		return 0, ErrWouldBlock
	}

	n := copy(b, p.buf)
	p.buf = p.buf[n:]

	if len(p.buf) == 0 {
		p.buf = nil
	}

	return n, nil
}

func (r *memReader) Close() error {
	p := r.p
	p.lock.Lock()
	defer p.lock.Unlock()

	p.readerClosed = true
	p.buf = nil

	return nil
}

type memWriter struct {
	p *memPipe
}

func (w *memWriter) TryWrite(b []byte) (int, error) {
	p := w.p
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.writerClosed {
		return 0, io.ErrClosedPipe
	}

	if p.readerClosed {
		return 0, io.ErrClosedPipe
	}

	room := p.capacity - len(p.buf)
	runtimex.Assert(room >= 0)

	if room == 0 {
		return 0, ErrWouldBlock
	}

	if len(b) <= AtomicWriteMax && len(b) > room {
		return 0, ErrWouldBlock
	}

	n := min(len(b), room)
	p.buf = append(p.buf, b[:n]...)

	return n, nil
}

func (w *memWriter) Close() error {
	p := w.p
	p.lock.Lock()
	defer p.lock.Unlock()

	p.writerClosed = true

	return nil
}
