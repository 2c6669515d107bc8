package manager

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sarchlab/netemu/pipe"
	"go.uber.org/multierr"
)

// MaxLine is the longest line accepted by either end.
const MaxLine = 4096

// ErrLineTooLong is reported when the peer sends a line longer than MaxLine.
var ErrLineTooLong = errors.New("manager: line too long")

// lineConn moves lines over a pipe pair without blocking. Outgoing bytes that
// do not fit are kept and flushed on later calls.
type lineConn struct {
	r pipe.Reader
	w pipe.Writer

	rbuf    []byte
	pending []byte
	scratch []byte
}

func newLineConn(r pipe.Reader, w pipe.Writer) *lineConn {
	return &lineConn{
		r:       r,
		w:       w,
		scratch: make([]byte, pipe.AtomicWriteMax),
	}
}

// readLine returns the next complete line, if any. It reads from the pipe at
// most once.
func (c *lineConn) readLine() (string, bool, error) {
	if line, ok := c.takeLine(); ok {
		return line, true, nil
	}

	n, err := c.r.TryRead(c.scratch)
	if n > 0 {
		c.rbuf = append(c.rbuf, c.scratch[:n]...)
	}

	if line, ok := c.takeLine(); ok {
		return line, true, nil
	}

	if len(c.rbuf) > MaxLine {
		c.rbuf = nil
		return "", false, ErrLineTooLong
	}

	if err != nil && !errors.Is(err, pipe.ErrWouldBlock) {
		return "", false, err
	}

	return "", false, nil
}

func (c *lineConn) takeLine() (string, bool) {
	i := bytes.IndexByte(c.rbuf, '\n')
	if i < 0 {
		return "", false
	}

	line := string(bytes.TrimRight(c.rbuf[:i], "\r"))
	c.rbuf = c.rbuf[i+1:]

	if len(c.rbuf) == 0 {
		c.rbuf = nil
	}

	return line, true
}

func (c *lineConn) writeLine(line string) error {
	if len(line) > MaxLine {
		return fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(line))
	}

	c.pending = append(c.pending, line...)
	c.pending = append(c.pending, '\n')

	return c.flush()
}

func (c *lineConn) flush() error {
	for len(c.pending) > 0 {
		chunk := c.pending[:min(len(c.pending), pipe.AtomicWriteMax)]

		n, err := c.w.TryWrite(chunk)
		c.pending = c.pending[n:]

		if errors.Is(err, pipe.ErrWouldBlock) {
			return nil
		}

		if err != nil {
			return err
		}
	}

	c.pending = nil

	return nil
}

func (c *lineConn) close() error {
	return multierr.Combine(c.r.Close(), c.w.Close())
}
