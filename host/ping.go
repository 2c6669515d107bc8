package host

import (
	"fmt"

	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/packet"
)

// PingState is the state of the host's outstanding ping.
type PingState int

// Ping states.
const (
	PingIdle PingState = iota
	PingRequestSent
	PingReplyReceived
	PingTimedOut
)

func (s PingState) String() string {
	switch s {
	case PingIdle:
		return "idle"
	case PingRequestSent:
		return "request-sent"
	case PingReplyReceived:
		return "reply-received"
	case PingTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// pingState tracks the latest ping. Only PingRequestSent blocks a new ping;
// the two outcome states behave like PingIdle.
type pingState struct {
	state PingState
	dst   int
}

func (c *Comp) startPing(dst int) {
	if c.ping.state == PingRequestSent {
		c.Reply(pingInProgress(c.ping.dst))
		return
	}

	c.ping = pingState{state: PingRequestSent, dst: dst}
	c.Enqueue(&node.Job{
		Kind:   node.JobPingSendRequest,
		Dst:    dst,
		InPort: node.NoPort,
	})
}

func (c *Comp) pingSendRequest(j *node.Job) {
	dst, err := addr(j.Dst)
	if err != nil {
		c.ping.state = PingIdle
		c.Reply(fmt.Sprintf("Ping to host %d failed: %v", j.Dst, err))

		return
	}

	c.emit(&packet.Packet{
		Src:  c.self(),
		Dst:  dst,
		Type: packet.TypePingRequest,
	})

	c.ping = pingState{state: PingRequestSent, dst: j.Dst}

	c.Enqueue(&node.Job{
		Kind:   node.JobPingAwaitReply,
		Dst:    j.Dst,
		Timer:  c.pingTimeout,
		InPort: node.NoPort,
	})
}

// pingAwaitReply spends one tick of the budget each time it runs.
func (c *Comp) pingAwaitReply(j *node.Job) {
	if c.ping.state != PingRequestSent || c.ping.dst != j.Dst {
		return
	}

	j.Timer--
	if j.Timer > 0 {
		c.Enqueue(j)
		return
	}

	c.ping.state = PingTimedOut
	log.Infof("%s: ping to host %d timed out", c.Name(), j.Dst)
	c.Reply(pingTimedOut(j.Dst))
}

func (c *Comp) pingReplied(src int) {
	if c.ping.state != PingRequestSent || c.ping.dst != src {
		log.Debugf("%s: unexpected ping reply from host %d", c.Name(), src)
		return
	}

	c.ping.state = PingReplyReceived
	c.Queue().Remove(func(j *node.Job) bool {
		return j.Kind == node.JobPingAwaitReply
	})

	log.Infof("%s: ping acked by host %d", c.Name(), src)
	c.Reply(pingAcked(src))
}
