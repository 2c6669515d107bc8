package node

import (
	"time"

	"github.com/sarchlab/netemu/port"
)

// DefaultTickInterval is the pause between two ticks.
const DefaultTickInterval = 10 * time.Millisecond

// Builder can build engines.
type Builder struct {
	id       int
	kind     string
	ports    []port.Port
	mgr      ManagerConn
	interval time.Duration
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		id:       -1,
		interval: DefaultTickInterval,
	}
}

// WithID sets the node id.
func (b Builder) WithID(id int) Builder {
	b.id = id
	return b
}

// WithKind sets the kind name shown in status snapshots.
func (b Builder) WithKind(kind string) Builder {
	b.kind = kind
	return b
}

// WithPorts sets the ports of the node, in index order.
func (b Builder) WithPorts(ports []port.Port) Builder {
	b.ports = ports
	return b
}

// WithManager sets the manager channel. Switches have none.
func (b Builder) WithManager(m ManagerConn) Builder {
	b.mgr = m
	return b
}

// WithTickInterval sets the pause between two ticks.
func (b Builder) WithTickInterval(d time.Duration) Builder {
	b.interval = d
	return b
}

// Build creates an engine.
func (b Builder) Build(name string) *Engine {
	b.idMustBeGiven()
	b.intervalMustBePositive()

	e := &Engine{
		name:     name,
		id:       b.id,
		kind:     b.kind,
		ports:    b.ports,
		mgr:      b.mgr,
		interval: b.interval,
		queue:    NewQueue(),
		handlers: make(map[Kind]Handler),
	}
	e.publish()

	return e
}

func (b Builder) idMustBeGiven() {
	if b.id < 0 {
		panic("node id must be given")
	}
}

func (b Builder) intervalMustBePositive() {
	if b.interval <= 0 {
		panic("tick interval must be positive")
	}
}
