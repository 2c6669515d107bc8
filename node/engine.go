// Package node provides the tick loop that every node runs.
//
// On each tick an engine reads at most one command from its manager channel,
// polls every port once in index order, turning each packet into a deliver
// job, and executes exactly one job. Protocol behavior is supplied by the
// handlers that switches and hosts register.
package node

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/manager"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/port"
	"go.uber.org/multierr"
)

var log = logging.Logger("netemu/node")

// HookPosJobExecute marks a job about to be executed.
var HookPosJobExecute = &hooking.HookPos{Name: "Job Execute"}

// A Handler executes one kind of job.
type Handler func(j *Job)

// A CommandHandler acts on a manager command, usually by enqueuing a job.
type CommandHandler func(cmd manager.Command)

// ManagerConn is the node's end of the manager channel.
type ManagerConn interface {
	// Poll returns the next pending command or nil. It never blocks.
	Poll() (*manager.Command, error)
	Reply(line string) error
	Close() error
}

// A StatusReporter adds component specific data to status snapshots.
type StatusReporter interface {
	StatusDetail() any
}

// Engine runs the tick loop of one node.
type Engine struct {
	hooking.HookableBase

	name     string
	id       int
	kind     string
	ports    []port.Port
	mgr      ManagerConn
	interval time.Duration

	queue    *Queue
	handlers map[Kind]Handler
	commands CommandHandler
	reporter StatusReporter

	ticks    uint64
	sent     uint64
	dropped  uint64
	received uint64
	mgrDone  bool

	status atomic.Pointer[Status]
}

// Name returns the name of the node.
func (e *Engine) Name() string {
	return e.name
}

// ID returns the node id.
func (e *Engine) ID() int {
	return e.id
}

// Ports returns the ports of the node in index order.
func (e *Engine) Ports() []port.Port {
	return e.ports
}

// Queue returns the job queue.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// RegisterHandler sets the handler of a job kind.
func (e *Engine) RegisterHandler(kind Kind, h Handler) {
	e.handlers[kind] = h
}

// HandleCommands sets the handler of manager commands.
func (e *Engine) HandleCommands(h CommandHandler) {
	e.commands = h
}

// SetStatusReporter sets where the detail of status snapshots comes from.
func (e *Engine) SetStatusReporter(r StatusReporter) {
	e.reporter = r
}

// Enqueue appends a job to the queue.
func (e *Engine) Enqueue(j *Job) {
	e.queue.Push(j)
}

// Reply answers the manager. Without a manager channel it does nothing.
func (e *Engine) Reply(line string) {
	if e.mgr == nil {
		return
	}

	if err := e.mgr.Reply(line); err != nil {
		log.Warnf("%s: reply to manager: %v", e.name, err)
	}
}

// Send sends a packet on one port. Failures are counted and logged.
func (e *Engine) Send(portIndex int, pkt *packet.Packet) error {
	if portIndex < 0 || portIndex >= len(e.ports) {
		log.Errorf("%s: send %s on unknown port %d", e.name, pkt, portIndex)
		return port.ErrDropped
	}

	err := e.ports[portIndex].Send(pkt)
	if err != nil {
		e.dropped++
		log.Debugf("%s: %v", e.ports[portIndex].Name(), err)

		return err
	}

	e.sent++

	return nil
}

// Flood sends a packet on every port except the given one.
func (e *Engine) Flood(pkt *packet.Packet, except int) {
	for i := range e.ports {
		if i == except {
			continue
		}

		_ = e.Send(i, pkt)
	}
}

// Tick runs one iteration of the loop and tells whether anything happened.
func (e *Engine) Tick() bool {
	madeProgress := false

	madeProgress = e.pollManager() || madeProgress
	madeProgress = e.pollPorts() || madeProgress
	madeProgress = e.execute() || madeProgress

	e.ticks++
	e.publish()

	return madeProgress
}

func (e *Engine) pollManager() bool {
	if e.mgr == nil || e.mgrDone {
		return false
	}

	cmd, err := e.mgr.Poll()

	switch {
	case errors.Is(err, io.EOF):
		log.Infof("%s: manager channel closed", e.name)
		e.mgrDone = true

		return false
	case err != nil:
		log.Warnf("%s: %v", e.name, err)
		return true
	case cmd == nil:
		return false
	}

	if e.commands == nil {
		log.Warnf("%s: no command handler for %s", e.name, cmd.Op)
		return true
	}

	e.safely(cmd.Op.String(), func() {
		e.commands(*cmd)
	})

	return true
}

func (e *Engine) pollPorts() bool {
	madeProgress := false

	for i, p := range e.ports {
		pkt := p.Recv()
		if pkt == nil {
			continue
		}

		e.received++
		e.queue.Push(&Job{
			Kind:    JobDeliver,
			Packet:  pkt,
			InPort:  i,
			OutPort: NoPort,
		})

		madeProgress = true
	}

	return madeProgress
}

func (e *Engine) execute() bool {
	j := e.queue.Pop()
	if j == nil {
		return false
	}

	h, ok := e.handlers[j.Kind]
	if !ok {
		log.Warnf("%s: no handler for %s job", e.name, j.Kind)
		return true
	}

	if e.NumHooks() > 0 {
		e.InvokeHook(hooking.HookCtx{
			Domain: e,
			Pos:    HookPosJobExecute,
			Item:   j,
		})
	}

	e.safely(j.Kind.String(), func() {
		h(j)
	})

	return true
}

// safely runs f and logs instead of crashing the node if it panics.
func (e *Engine) safely(what string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s: %s failed: %v", e.name, what, r)
		}
	}()

	f()
}

// Run ticks at the fixed interval until the context is cancelled, then
// closes the node's ports and manager channel.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if err := e.Close(); err != nil {
			log.Debugf("%s: close: %v", e.name, err)
		}
	}()

	log.Debugf("%s: running with %d ports", e.name, len(e.ports))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		e.Tick()
		timer.Reset(e.interval)
	}
}

// Close closes the ports and the manager channel.
func (e *Engine) Close() error {
	var err error

	for _, p := range e.ports {
		err = multierr.Append(err, p.Close())
	}

	if e.mgr != nil {
		err = multierr.Append(err, e.mgr.Close())
	}

	return err
}
