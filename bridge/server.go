package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/pipe"
)

// Server is the accepting relay of a bridged link.
type Server struct {
	name     string
	listener net.Listener
	inbound  pipe.Writer

	writeLock sync.Mutex
	dropped   atomic.Uint64
}

// Listen binds the listening socket of a server relay. A failure here is
// fatal for the link.
func Listen(name, addr string, inbound pipe.Writer) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Addr: addr, Err: err}
	}

	s := &Server{
		name:     name,
		listener: l,
		inbound:  inbound,
	}

	return s, nil
}

// Name returns the name of the relay.
func (s *Server) Name() string {
	return s.name
}

// Addr returns the address the relay listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Dropped returns the number of frames dropped because the inbound channel
// was full.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

// Run accepts connections until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	defer func() {
		wg.Wait()
		s.inbound.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return &TransportError{
				Op:   "accept",
				Addr: s.listener.Addr().String(),
				Err:  err,
			}
		}

		log.Debugf("%s: accepted %s", s.name, conn.RemoteAddr())

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	r := bufio.NewReader(conn)

	for {
		frame, err := packet.ReadFrame(r)
		if err != nil {
			switch {
			case errors.Is(err, packet.ErrProtocol):
				log.Warnf("%s: dropping connection from %s: %v",
					s.name, conn.RemoteAddr(), err)
			case errors.Is(err, io.EOF), ctx.Err() != nil:
			default:
				log.Debugf("%s: connection from %s ended: %v",
					s.name, conn.RemoteAddr(), err)
			}

			return
		}

		if !s.deliver(frame) {
			return
		}
	}
}

// deliver writes a whole frame into the inbound channel. It returns false
// once the node has closed its end.
func (s *Server) deliver(frame []byte) bool {
	s.writeLock.Lock()
	_, err := s.inbound.TryWrite(frame)
	s.writeLock.Unlock()

	switch {
	case err == nil:
		return true
	case errors.Is(err, pipe.ErrWouldBlock):
		s.dropped.Add(1)
		log.Debugf("%s: inbound channel full, frame dropped", s.name)

		return true
	default:
		return false
	}
}
