package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sarchlab/netemu/pipe"
)

var log = logging.Logger("netemu/manager")

// DefaultPollInterval is how often a controller checks for a reply.
const DefaultPollInterval = 10 * time.Millisecond

// Controller is the manager end of the channel to one host. Requests are
// serialized, so a controller may be shared.
type Controller struct {
	lock         sync.Mutex
	hostID       int
	conn         *lineConn
	pollInterval time.Duration

	// owed counts replies to commands whose caller gave up. They arrive
	// before any newer reply and are discarded.
	owed int
}

// NewController creates the manager end over the given channel ends.
func NewController(hostID int, r pipe.Reader, w pipe.Writer) *Controller {
	return &Controller{
		hostID:       hostID,
		conn:         newLineConn(r, w),
		pollInterval: DefaultPollInterval,
	}
}

// HostID returns the id of the host this controller talks to.
func (c *Controller) HostID() int {
	return c.hostID
}

// Do sends a command and, for commands that have a reply, waits for it.
func (c *Controller) Do(ctx context.Context, cmd Command) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.conn.writeLine(cmd.String()); err != nil {
		return "", fmt.Errorf("manager: send %s to host %d: %w",
			cmd.Op, c.hostID, err)
	}

	if !cmd.Op.HasReply() {
		return "", c.drain(ctx)
	}

	return c.await(ctx)
}

// drain makes sure the command left the controller.
func (c *Controller) drain(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for len(c.conn.pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := c.conn.flush(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) await(ctx context.Context) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.conn.flush(); err != nil {
			return "", err
		}

		line, ok, err := c.conn.readLine()
		if err != nil {
			return "", fmt.Errorf("manager: host %d: %w", c.hostID, err)
		}

		if ok && c.owed > 0 {
			c.owed--
			log.Debugf("host %d: discarding late reply %q", c.hostID, line)

			continue
		}

		if ok {
			return line, nil
		}

		select {
		case <-ctx.Done():
			c.owed++
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// State queries the host state. Reports are drained on the host side.
func (c *Controller) State(ctx context.Context) (State, error) {
	line, err := c.Do(ctx, Command{Op: OpState})
	if err != nil {
		return State{}, err
	}

	return ParseState(line)
}

// SetDir sets the working directory of the host.
func (c *Controller) SetDir(ctx context.Context, dir string) error {
	_, err := c.Do(ctx, Command{Op: OpSetDir, Arg: dir})
	return err
}

// Ping asks the host to ping another host and returns the result line.
func (c *Controller) Ping(ctx context.Context, host int) (string, error) {
	return c.Do(ctx, Command{Op: OpPing, Host: host})
}

// Upload asks the host to upload a file from its directory to another host.
func (c *Controller) Upload(ctx context.Context, host int, file string) error {
	_, err := c.Do(ctx, Command{Op: OpUpload, Host: host, Arg: file})
	return err
}

// Download asks the host to fetch a file from another host into its
// directory.
func (c *Controller) Download(ctx context.Context, host int, file string) error {
	_, err := c.Do(ctx, Command{Op: OpDownload, Host: host, Arg: file})
	return err
}

// Close closes both channel ends.
func (c *Controller) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.conn.close()
}

// NewPair creates a controller and the matching host end over two fresh
// pipes.
func NewPair(hostID int, factory pipe.Factory) (*Controller, *HostConn, error) {
	toHostR, toHostW, err := factory()
	if err != nil {
		return nil, nil, err
	}

	toMgrR, toMgrW, err := factory()
	if err != nil {
		toHostR.Close()
		toHostW.Close()

		return nil, nil, err
	}

	return NewController(hostID, toMgrR, toHostW), NewHostConn(toHostR, toMgrW), nil
}
