package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sarchlab/netemu/pipe"
)

var errPeerClosed = errors.New("connection closed by peer")

// Client is the dialing relay of a bridged link.
type Client struct {
	name         string
	addr         string
	outbound     pipe.Reader
	pollInterval time.Duration
	maxInterval  time.Duration
	dialer       net.Dialer
}

// NewClient creates a client relay that sends the bytes read from outbound to
// addr.
func NewClient(name, addr string, outbound pipe.Reader) *Client {
	return &Client{
		name:         name,
		addr:         addr,
		outbound:     outbound,
		pollInterval: 5 * time.Millisecond,
		maxInterval:  2 * time.Second,
	}
}

// WithPollInterval sets how often the outbound channel is polled when idle.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	c.pollInterval = d
	return c
}

// WithMaxBackoff caps the wait between two dial attempts.
func (c *Client) WithMaxBackoff(d time.Duration) *Client {
	c.maxInterval = d
	return c
}

// Name returns the name of the relay.
func (c *Client) Name() string {
	return c.name
}

// Run dials the remote end and relays until the context is cancelled or the
// node closes the outbound channel. A broken connection is dialed again.
func (c *Client) Run(ctx context.Context) error {
	defer c.outbound.Close()

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			return nil
		}

		log.Infof("%s: connected to %s", c.name, c.addr)

		err = c.pump(ctx, conn)
		conn.Close()

		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			return nil
		}

		log.Warnf("%s: link to %s lost: %v", c.name, c.addr, err)
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0

	var conn net.Conn

	op := func() error {
		var err error

		conn, err = c.dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			log.Debugf("%s: dial %s: %v", c.name, c.addr, err)
		}

		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	return conn, nil
}

func (c *Client) pump(ctx context.Context, conn net.Conn) error {
	broken := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, conn)
		if err == nil {
			err = errPeerClosed
		}
		broken <- err
	}()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	buf := make([]byte, 4096)

	for {
		n, err := c.outbound.TryRead(buf)

		switch {
		case n > 0:
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return &TransportError{Op: "write", Addr: c.addr, Err: werr}
			}

			continue
		case errors.Is(err, pipe.ErrWouldBlock):
		case err != nil:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-broken:
			return err
		case <-ticker.C:
		}
	}
}
