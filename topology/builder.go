package topology

import (
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sarchlab/netemu/bridge"
	"github.com/sarchlab/netemu/manager"
	"github.com/sarchlab/netemu/pipe"
	"github.com/sarchlab/netemu/port"
	"go.uber.org/multierr"
)

var log = logging.Logger("netemu/topology")

// A NodeSlot holds what one node needs to run.
type NodeSlot struct {
	ID    int
	Kind  NodeKind
	Ports []port.Port

	// Manager is the host end of the manager channel. Nil for switches.
	Manager *manager.HostConn
}

// Name returns the name of the node.
func (s *NodeSlot) Name() string {
	return fmt.Sprintf("%s%d", s.Kind, s.ID)
}

// Network is a built topology.
type Network struct {
	Topology *Topology
	Nodes    []*NodeSlot
	Relays   []bridge.Relay

	// Managers maps host ids to the manager end of their channel.
	Managers map[int]*manager.Controller

	// LinkErrors holds the bridged links whose server relay could not bind.
	// Those links have no ingress.
	LinkErrors []error

	relayEnds []port.RelayEnds
}

// Close closes every channel end of the network. Relays and nodes close
// their own ends when they exit, so this only matters when the network is
// not run.
func (n *Network) Close() error {
	var err error

	for _, slot := range n.Nodes {
		for _, p := range slot.Ports {
			err = multierr.Append(err, p.Close())
		}

		if slot.Manager != nil {
			err = multierr.Append(err, slot.Manager.Close())
		}
	}

	for _, c := range n.Managers {
		err = multierr.Append(err, c.Close())
	}

	for _, e := range n.relayEnds {
		err = multierr.Append(err, e.Inbound.Close())
		err = multierr.Append(err, e.Outbound.Close())
	}

	return err
}

// Builder builds networks.
type Builder struct {
	factory          pipe.Factory
	relayPoll        time.Duration
	dialMaxInterval  time.Duration
	defaultLocalHost string
}

// MakeBuilder creates a builder that uses in-memory pipes.
func MakeBuilder() Builder {
	return Builder{
		factory:         pipe.MemFactory(pipe.DefaultCapacity),
		relayPoll:       5 * time.Millisecond,
		dialMaxInterval: 2 * time.Second,
	}
}

// WithPipeFactory sets how the channels of ports and managers are created.
func (b Builder) WithPipeFactory(f pipe.Factory) Builder {
	b.factory = f
	return b
}

// WithRelayPollInterval sets how often client relays poll an idle channel.
func (b Builder) WithRelayPollInterval(d time.Duration) Builder {
	b.relayPoll = d
	return b
}

// WithDialMaxInterval caps the backoff of client relays.
func (b Builder) WithDialMaxInterval(d time.Duration) Builder {
	b.dialMaxInterval = d
	return b
}

// WithDefaultListenHost sets the host that bridged links without a local
// domain bind to. The default binds all interfaces.
func (b Builder) WithDefaultListenHost(host string) Builder {
	b.defaultLocalHost = host
	return b
}

// Build validates the topology and creates the node records, the ports of
// every link and one manager channel per host, in that order. Nothing is
// started. A validation failure is returned as a *ConfigError.
func (b Builder) Build(t *Topology) (*Network, error) {
	b.factoryMustBeGiven()

	if err := t.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		Topology: t,
		Managers: make(map[int]*manager.Controller),
	}

	for _, node := range t.Nodes {
		n.Nodes = append(n.Nodes, &NodeSlot{ID: node.ID, Kind: node.Kind})
	}

	for i, l := range t.Links {
		var err error

		switch l.Kind {
		case Direct:
			err = b.buildDirect(n, i, l)
		case Bridged:
			err = b.buildBridged(n, i, l)
		}

		if err != nil {
			return nil, multierr.Append(err, n.Close())
		}
	}

	for _, slot := range n.Nodes {
		if slot.Kind != Host {
			continue
		}

		ctrl, conn, err := manager.NewPair(slot.ID, b.factory)
		if err != nil {
			return nil, multierr.Append(
				fmt.Errorf("topology: manager channel of host %d: %w",
					slot.ID, err),
				n.Close())
		}

		slot.Manager = conn
		n.Managers[slot.ID] = ctrl
	}

	return n, nil
}

func (b Builder) buildDirect(n *Network, i int, l Link) error {
	s0, s1 := n.Nodes[l.Node0], n.Nodes[l.Node1]

	p0, p1, err := port.NewDirectPair(
		port.End{Name: portName(s0, i), Node: s0.ID},
		port.End{Name: portName(s1, i), Node: s1.ID},
		b.factory,
	)
	if err != nil {
		return fmt.Errorf("topology: link %d: %w", i, err)
	}

	s0.Ports = append(s0.Ports, p0)
	s1.Ports = append(s1.Ports, p1)

	return nil
}

func (b Builder) buildBridged(n *Network, i int, l Link) error {
	slot := n.Nodes[l.Node0]

	p, ends, err := port.NewBridged(
		port.End{Name: portName(slot, i), Node: slot.ID},
		l.Node1,
		l.RemoteAddr(),
		b.factory,
	)
	if err != nil {
		return fmt.Errorf("topology: link %d: %w", i, err)
	}

	slot.Ports = append(slot.Ports, p)

	listen := l.ListenAddr()
	if l.LocalDomain == "" {
		listen = b.defaultLocalHost + ":" + l.ListenPort
	}

	server, err := bridge.Listen(
		fmt.Sprintf("%s.server", p.Name()), listen, ends.Inbound)
	if err != nil {
		log.Errorf("link %d: %v; the link has no ingress", i, err)
		n.LinkErrors = append(n.LinkErrors, err)
		ends.Inbound.Close()
	} else {
		n.Relays = append(n.Relays, server)
	}

	client := bridge.NewClient(
		fmt.Sprintf("%s.client", p.Name()), l.RemoteAddr(), ends.Outbound).
		WithPollInterval(b.relayPoll).
		WithMaxBackoff(b.dialMaxInterval)
	n.Relays = append(n.Relays, client)
	n.relayEnds = append(n.relayEnds, ends)

	return nil
}

func portName(s *NodeSlot, link int) string {
	return fmt.Sprintf("%s.link%d", s.Name(), link)
}

func (b Builder) factoryMustBeGiven() {
	if b.factory == nil {
		panic("topology builder requires a pipe factory")
	}
}
