// Package host implements end hosts: they answer pings, exchange files in
// chunks and act on commands from the manager.
package host

import (
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sarchlab/netemu/manager"
	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/packet"
)

var log = logging.Logger("netemu/host")

// ErrBadHost means a peer id cannot be used as a packet address.
var ErrBadHost = errors.New("bad host id")

// addr converts a node id to a packet address.
func addr(id int) (uint8, error) {
	if id < 0 || id >= packet.BroadcastID {
		return 0, fmt.Errorf("%w: %d", ErrBadHost, id)
	}

	return uint8(id), nil
}

// Comp is a host.
type Comp struct {
	*node.Engine

	dir         string
	pingTimeout int
	chunkSize   int

	ping     pingState
	inbound  map[int]*inboundTransfer
	reports  []string
	counters counters
}

type counters struct {
	dataReceived  uint64
	filesReceived uint64
	filesSent     uint64
	transferFails uint64
}

// Dir returns the working directory, or "" if it is not set.
func (c *Comp) Dir() string {
	return c.dir
}

func (c *Comp) self() uint8 {
	a, err := addr(c.ID())
	if err != nil {
		panic(err)
	}

	return a
}

// report records an event for the next state query.
func (c *Comp) report(format string, args ...any) {
	r := fmt.Sprintf(format, args...)
	log.Infof("%s: %s", c.Name(), r)
	c.reports = append(c.reports, r)
}

// emit sends a packet on every port of the host.
func (c *Comp) emit(pkt *packet.Packet) {
	c.Flood(pkt, node.NoPort)
}

func (c *Comp) handleCommand(cmd manager.Command) {
	switch cmd.Op {
	case manager.OpState:
		c.Reply(manager.State{
			Dir:     c.dir,
			HostID:  c.ID(),
			Reports: c.reports,
		}.String())
		c.reports = nil
	case manager.OpSetDir:
		c.dir = cmd.Arg
		log.Infof("%s: directory set to %s", c.Name(), c.dir)
	case manager.OpPing:
		if _, err := addr(cmd.Host); err != nil {
			c.Reply(fmt.Sprintf("Ping to host %d failed: %v", cmd.Host, err))
			return
		}

		c.startPing(cmd.Host)
	case manager.OpUpload:
		c.Enqueue(&node.Job{
			Kind:     node.JobUploadBegin,
			Dst:      cmd.Host,
			FileName: cmd.Arg,
			InPort:   node.NoPort,
		})
	case manager.OpDownload:
		c.requestDownload(cmd.Host, cmd.Arg)
	default:
		log.Warnf("%s: unsupported command %s", c.Name(), cmd.Op)
	}
}

func (c *Comp) deliver(j *node.Job) {
	pkt := j.Packet

	if int(pkt.Dst) != c.ID() && pkt.Dst != packet.BroadcastID {
		log.Debugf("%s: dropping %s, not addressed to us", c.Name(), pkt)
		return
	}

	src := int(pkt.Src)

	switch pkt.Type {
	case packet.TypePingRequest:
		c.Enqueue(&node.Job{
			Kind: node.JobSend,
			Packet: &packet.Packet{
				Src:  c.self(),
				Dst:  pkt.Src,
				Type: packet.TypePingReply,
			},
			InPort:  node.NoPort,
			OutPort: node.AllPorts,
		})
	case packet.TypePingReply:
		c.pingReplied(src)
	case packet.TypeFileUploadStart:
		c.receiveStart(src, string(pkt.Payload))
	case packet.TypeFileUploadContinue:
		c.receiveChunk(src, pkt.Payload, false)
	case packet.TypeFileUploadEnd:
		c.receiveChunk(src, pkt.Payload, true)
	case packet.TypeFileDownloadRequest:
		c.Enqueue(&node.Job{
			Kind:     node.JobDownloadBegin,
			Dst:      src,
			FileName: string(pkt.Payload),
			InPort:   node.NoPort,
		})
	case packet.TypeData:
		c.counters.dataReceived++
		log.Debugf("%s: data from host %d: %q", c.Name(), src, pkt.Payload)
	default:
		log.Warnf("%s: dropping %s, unknown type", c.Name(), pkt)
	}
}

func (c *Comp) send(j *node.Job) {
	if j.OutPort == node.AllPorts {
		c.Flood(j.Packet, j.InPort)
		return
	}

	_ = c.Send(j.OutPort, j.Packet)
}

// Detail is what a host adds to its status snapshots.
type Detail struct {
	Dir            string `json:"dir"`
	Ping           string `json:"ping"`
	PingTarget     int    `json:"ping_target"`
	Receiving      int    `json:"receiving"`
	PendingReports int    `json:"pending_reports"`
	DataReceived   uint64 `json:"data_received"`
	FilesReceived  uint64 `json:"files_received"`
	FilesSent      uint64 `json:"files_sent"`
	TransferFails  uint64 `json:"transfer_fails"`
}

// StatusDetail reports the host state.
func (c *Comp) StatusDetail() any {
	return Detail{
		Dir:            c.dir,
		Ping:           c.ping.state.String(),
		PingTarget:     c.ping.dst,
		Receiving:      len(c.inbound),
		PendingReports: len(c.reports),
		DataReceived:   c.counters.dataReceived,
		FilesReceived:  c.counters.filesReceived,
		FilesSent:      c.counters.filesSent,
		TransferFails:  c.counters.transferFails,
	}
}
