package switching

import (
	"time"

	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/port"
)

// Builder can build switches.
type Builder struct {
	id            int
	ports         []port.Port
	tableCapacity int
	interval      time.Duration
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		id:            -1,
		tableCapacity: DefaultTableCapacity,
		interval:      node.DefaultTickInterval,
	}
}

// WithID sets the node id of the switch.
func (b Builder) WithID(id int) Builder {
	b.id = id
	return b
}

// WithPorts sets the ports of the switch.
func (b Builder) WithPorts(ports []port.Port) Builder {
	b.ports = ports
	return b
}

// WithTableCapacity sets how many hosts the switch can learn.
func (b Builder) WithTableCapacity(n int) Builder {
	b.tableCapacity = n
	return b
}

// WithTickInterval sets the pause between two ticks.
func (b Builder) WithTickInterval(d time.Duration) Builder {
	b.interval = d
	return b
}

// Build creates a switch.
func (b Builder) Build(name string) *Comp {
	b.portsMustBeGiven()

	c := &Comp{
		table: NewTable(b.tableCapacity),
	}
	c.Engine = node.MakeBuilder().
		WithID(b.id).
		WithKind("switch").
		WithPorts(b.ports).
		WithTickInterval(b.interval).
		Build(name)

	c.RegisterHandler(node.JobDeliver, c.deliver)
	c.SetStatusReporter(c)

	return c
}

func (b Builder) portsMustBeGiven() {
	if len(b.ports) == 0 {
		panic("switch requires at least one port")
	}
}
