package manager

import (
	"github.com/sarchlab/netemu/pipe"
)

// HostConn is the host end of a manager channel. It never blocks.
type HostConn struct {
	conn *lineConn
}

// NewHostConn creates the host end over the given channel ends.
func NewHostConn(r pipe.Reader, w pipe.Writer) *HostConn {
	return &HostConn{conn: newLineConn(r, w)}
}

// Poll returns the next pending command, or nil if there is none. A line
// that does not parse is consumed and reported as an error wrapping
// ErrBadCommand.
func (c *HostConn) Poll() (*Command, error) {
	if err := c.conn.flush(); err != nil {
		return nil, err
	}

	line, ok, err := c.conn.readLine()
	if err != nil || !ok {
		return nil, err
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		return nil, err
	}

	return &cmd, nil
}

// Reply sends one reply line to the manager.
func (c *HostConn) Reply(line string) error {
	return c.conn.writeLine(line)
}

// Close closes both channel ends.
func (c *HostConn) Close() error {
	return c.conn.close()
}
