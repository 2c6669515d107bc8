// Package switching implements the learning switch.
package switching

import (
	"errors"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/packet"
)

var log = logging.Logger("netemu/switch")

// Comp is a learning switch. It learns the port behind each source host and
// floods packets whose destination it has not learned.
type Comp struct {
	*node.Engine

	table       *Table
	fullLogged  bool
	unicast     uint64
	flooded     uint64
	unlearnable uint64
}

// Table returns the forwarding table. It must only be used from the node's
// goroutine or before the switch runs.
func (c *Comp) Table() *Table {
	return c.table
}

func (c *Comp) deliver(j *node.Job) {
	pkt := j.Packet

	c.learn(int(pkt.Src), j.InPort)

	if pkt.Dst == packet.BroadcastID {
		c.flood(pkt, j.InPort)
		return
	}

	out, ok := c.table.Lookup(int(pkt.Dst))
	if !ok {
		c.flood(pkt, j.InPort)
		return
	}

	c.unicast++
	_ = c.Send(out, pkt)
}

func (c *Comp) learn(host, port int) {
	err := c.table.Learn(host, port)
	if errors.Is(err, ErrTableFull) {
		c.unlearnable++

		if !c.fullLogged {
			log.Warnf("%s: cannot learn host %d: %v", c.Name(), host, err)
			c.fullLogged = true
		}
	}
}

func (c *Comp) flood(pkt *packet.Packet, inPort int) {
	c.flooded++
	c.Flood(pkt, inPort)
}

// Detail is what a switch adds to its status snapshots.
type Detail struct {
	Table       []ForwardingEntry `json:"table"`
	Capacity    int               `json:"capacity"`
	Unicast     uint64            `json:"unicast"`
	Flooded     uint64            `json:"flooded"`
	Unlearnable uint64            `json:"unlearnable"`
}

// StatusDetail reports the forwarding table and counters.
func (c *Comp) StatusDetail() any {
	return Detail{
		Table:       c.table.Entries(),
		Capacity:    c.table.Capacity(),
		Unicast:     c.unicast,
		Flooded:     c.flooded,
		Unlearnable: c.unlearnable,
	}
}
