package host

import (
	"fmt"
	"time"

	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/port"
)

// DefaultPingTimeout is the number of await runs before a ping times out.
const DefaultPingTimeout = 10

// Builder can build hosts.
type Builder struct {
	id          int
	ports       []port.Port
	mgr         node.ManagerConn
	dir         string
	pingTimeout int
	chunkSize   int
	interval    time.Duration
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		id:          -1,
		pingTimeout: DefaultPingTimeout,
		chunkSize:   packet.PayloadMax,
		interval:    node.DefaultTickInterval,
	}
}

// WithID sets the node id of the host.
func (b Builder) WithID(id int) Builder {
	b.id = id
	return b
}

// WithPorts sets the ports of the host.
func (b Builder) WithPorts(ports []port.Port) Builder {
	b.ports = ports
	return b
}

// WithManager sets the host end of the manager channel.
func (b Builder) WithManager(m node.ManagerConn) Builder {
	b.mgr = m
	return b
}

// WithDir sets the initial working directory.
func (b Builder) WithDir(dir string) Builder {
	b.dir = dir
	return b
}

// WithPingTimeout sets the tick budget of a ping.
func (b Builder) WithPingTimeout(ticks int) Builder {
	b.pingTimeout = ticks
	return b
}

// WithChunkSize sets the payload size of file chunks.
func (b Builder) WithChunkSize(n int) Builder {
	b.chunkSize = n
	return b
}

// WithTickInterval sets the pause between two ticks.
func (b Builder) WithTickInterval(d time.Duration) Builder {
	b.interval = d
	return b
}

// Build creates a host.
func (b Builder) Build(name string) *Comp {
	b.idMustBeAddress()
	b.chunkSizeMustFit()
	b.pingTimeoutMustBePositive()

	c := &Comp{
		dir:         b.dir,
		pingTimeout: b.pingTimeout,
		chunkSize:   b.chunkSize,
		inbound:     make(map[int]*inboundTransfer),
	}

	eb := node.MakeBuilder().
		WithID(b.id).
		WithKind("host").
		WithPorts(b.ports).
		WithTickInterval(b.interval)
	if b.mgr != nil {
		eb = eb.WithManager(b.mgr)
	}
	c.Engine = eb.Build(name)

	c.HandleCommands(c.handleCommand)
	c.RegisterHandler(node.JobDeliver, c.deliver)
	c.RegisterHandler(node.JobSend, c.send)
	c.RegisterHandler(node.JobPingSendRequest, c.pingSendRequest)
	c.RegisterHandler(node.JobPingAwaitReply, c.pingAwaitReply)
	c.RegisterHandler(node.JobUploadBegin, c.uploadBegin)
	c.RegisterHandler(node.JobUploadContinue, c.uploadContinue)
	c.RegisterHandler(node.JobUploadEnd, c.uploadEnd)
	c.RegisterHandler(node.JobDownloadBegin, c.downloadBegin)
	c.RegisterHandler(node.JobDownloadContinue, c.downloadContinue)
	c.SetStatusReporter(c)

	return c
}

func (b Builder) idMustBeAddress() {
	if _, err := addr(b.id); err != nil {
		panic(err)
	}
}

func (b Builder) chunkSizeMustFit() {
	if b.chunkSize <= 0 || b.chunkSize > packet.PayloadMax {
		panic(fmt.Sprintf("chunk size must be in 1..%d", packet.PayloadMax))
	}
}

func (b Builder) pingTimeoutMustBePositive() {
	if b.pingTimeout <= 0 {
		panic("ping timeout must be positive")
	}
}
