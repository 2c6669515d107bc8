//go:build unix

package pipe

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// NewOS creates an operating system pipe with both ends set to non-blocking
// mode. The descriptors are used directly and never handed to the Go poller.
func NewOS() (Reader, Writer, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, nil, err
	}

	for _, fd := range fds {
		unix.CloseOnExec(fd)

		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])

			return nil, nil, err
		}
	}

	return &osEnd{fd: fds[0]}, &osEnd{fd: fds[1]}, nil
}

type osEnd struct {
	fd        int
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

func (e *osEnd) TryRead(b []byte) (int, error) {
	if e.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		n, err := unix.Read(e.fd, b)

		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(b) > 0:
			return 0, io.EOF
		}

		return n, nil
	}
}

func (e *osEnd) TryWrite(b []byte) (int, error) {
	if e.closed {
		return 0, io.ErrClosedPipe
	}

	for {
		n, err := unix.Write(e.fd, b)

		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case errors.Is(err, unix.EPIPE):
			return 0, io.ErrClosedPipe
		case err != nil:
			return 0, err
		}

		return n, nil
	}
}

func (e *osEnd) Close() error {
	e.closeOnce.Do(func() {
		e.closed = true
		e.closeErr = unix.Close(e.fd)
	})

	return e.closeErr
}
