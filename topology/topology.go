// Package topology describes the nodes and links of an emulated network and
// builds the ports, manager channels and relays that realize it.
package topology

import (
	"fmt"
	"strconv"

	"github.com/sarchlab/netemu/packet"
)

// MaxHosts is the offset between a local node id and the id given to the
// remote end of a bridged link.
const MaxHosts = 127

// NodeKind is the kind of a node.
type NodeKind int

// Node kinds.
const (
	Host NodeKind = iota
	Switch
)

func (k NodeKind) String() string {
	switch k {
	case Host:
		return "host"
	case Switch:
		return "switch"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// LinkKind is the kind of a link.
type LinkKind int

// Link kinds.
const (
	Direct LinkKind = iota
	Bridged
)

func (k LinkKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Bridged:
		return "bridged"
	default:
		return fmt.Sprintf("LinkKind(%d)", int(k))
	}
}

// A Node is a declared network element.
type Node struct {
	ID   int
	Kind NodeKind
}

// A Link connects two nodes. For a bridged link Node1 is the id assigned to
// the remote end and the socket fields are set.
type Link struct {
	Kind  LinkKind
	Node0 int
	Node1 int

	LocalDomain  string
	ListenPort   string
	RemoteDomain string
	RemotePort   string
}

// ListenAddr is the address the server relay binds.
func (l Link) ListenAddr() string {
	return l.LocalDomain + ":" + l.ListenPort
}

// RemoteAddr is the address the client relay dials.
func (l Link) RemoteAddr() string {
	return l.RemoteDomain + ":" + l.RemotePort
}

// Topology is the declarative description of a network.
type Topology struct {
	Nodes []Node
	Links []Link
}

// Hosts returns the ids of the host nodes.
func (t *Topology) Hosts() []int {
	var ids []int

	for _, n := range t.Nodes {
		if n.Kind == Host {
			ids = append(ids, n.ID)
		}
	}

	return ids
}

// ConfigError reports malformed or inconsistent topology data.
type ConfigError struct {
	// Line is the 1-based source line, or 0 when not known.
	Line int
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("topology: line %d: %s", e.Line, e.Msg)
	}

	return "topology: " + e.Msg
}

func configErrorf(line int, format string, args ...any) *ConfigError {
	return &ConfigError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Validate checks the topology. Every failure is a *ConfigError.
func (t *Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return configErrorf(0, "no nodes")
	}

	if len(t.Links) == 0 {
		return configErrorf(0, "no links")
	}

	for i, n := range t.Nodes {
		if n.ID != i {
			return configErrorf(0, "node %d declared with id %d", i, n.ID)
		}

		if n.ID >= packet.BroadcastID {
			return configErrorf(0, "node id %d is not below %d",
				n.ID, packet.BroadcastID)
		}

		if n.Kind != Host && n.Kind != Switch {
			return configErrorf(0, "node %d has unknown kind %s", n.ID, n.Kind)
		}
	}

	for i, l := range t.Links {
		if err := t.validateLink(l); err != nil {
			return configErrorf(0, "link %d: %s", i, err.Msg)
		}
	}

	return nil
}

func (t *Topology) validateLink(l Link) *ConfigError {
	if !t.hasNode(l.Node0) {
		return configErrorf(0, "unknown node %d", l.Node0)
	}

	switch l.Kind {
	case Direct:
		if !t.hasNode(l.Node1) {
			return configErrorf(0, "unknown node %d", l.Node1)
		}

		if l.Node0 == l.Node1 {
			return configErrorf(0, "node %d linked to itself", l.Node0)
		}
	case Bridged:
		if l.Node1 != l.Node0+MaxHosts {
			return configErrorf(0, "remote id must be %d, not %d",
				l.Node0+MaxHosts, l.Node1)
		}

		if !validPort(l.ListenPort) {
			return configErrorf(0, "bad listen port %q", l.ListenPort)
		}

		if !validPort(l.RemotePort) {
			return configErrorf(0, "bad remote port %q", l.RemotePort)
		}

		if l.RemoteDomain == "" {
			return configErrorf(0, "missing remote domain")
		}
	default:
		return configErrorf(0, "unknown kind %s", l.Kind)
	}

	return nil
}

func (t *Topology) hasNode(id int) bool {
	return id >= 0 && id < len(t.Nodes)
}

func validPort(s string) bool {
	p, err := strconv.Atoi(s)
	return err == nil && p > 0 && p <= 65535
}
