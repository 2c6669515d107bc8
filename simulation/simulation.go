// Package simulation runs a whole network: every node and relay of a
// topology, plus the optional recorder, capture and monitor.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/sarchlab/netemu/capture"
	"github.com/sarchlab/netemu/datarecording"
	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/host"
	"github.com/sarchlab/netemu/manager"
	"github.com/sarchlab/netemu/monitoring"
	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/port"
	"github.com/sarchlab/netemu/switching"
	"github.com/sarchlab/netemu/topology"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var log = logging.Logger("netemu/simulation")

// A Node is a host or a switch as the simulation sees it.
type Node interface {
	Name() string
	ID() int
	Ports() []port.Port
	Status() *node.Status
	AcceptHook(h hooking.Hook)
	Run(ctx context.Context) error
}

// A Simulation owns a built network and everything attached to it.
type Simulation struct {
	id      string
	network *topology.Network

	nodes    []Node
	hosts    map[int]*host.Comp
	switches map[int]*switching.Comp

	dataRecorder datarecording.DataRecorder
	runRecorder  *datarecording.RunRecorder
	tracer       *datarecording.Tracer
	capture      *capture.Trace
	monitor      *monitoring.Monitor

	lock       sync.Mutex
	started    bool
	terminated bool
}

// ID returns the unique id of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Network returns the built topology.
func (s *Simulation) Network() *topology.Network {
	return s.network
}

// Nodes returns every node in id order.
func (s *Simulation) Nodes() []Node {
	return s.nodes
}

// Host returns the host with the given id or nil.
func (s *Simulation) Host(id int) *host.Comp {
	return s.hosts[id]
}

// Switch returns the switch with the given id or nil.
func (s *Simulation) Switch(id int) *switching.Comp {
	return s.switches[id]
}

// Manager returns the controller of a host.
func (s *Simulation) Manager(hostID int) (*manager.Controller, error) {
	c, ok := s.network.Managers[hostID]
	if !ok {
		return nil, fmt.Errorf("simulation: node %d is not a host", hostID)
	}

	return c, nil
}

// HostIDs returns the ids of all hosts in ascending order.
func (s *Simulation) HostIDs() []int {
	ids := make([]int, 0, len(s.hosts))
	for id := range s.hosts {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// GetDataRecorder returns the data recorder, or nil if recording is off.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor, or nil if monitoring is off.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// Run starts every node and relay and blocks until ctx is cancelled or one
// of them fails. A simulation can only run once.
func (s *Simulation) Run(ctx context.Context) error {
	s.lock.Lock()
	if s.started || s.terminated {
		s.lock.Unlock()
		return errors.New("simulation: already started")
	}
	s.started = true
	s.lock.Unlock()

	if s.runRecorder != nil {
		s.runRecorder.Start(
			datarecording.RunInfo{Property: "Simulation ID", Value: s.id},
			datarecording.RunInfo{
				Property: "Nodes",
				Value:    fmt.Sprint(len(s.nodes)),
			},
		)
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, n := range s.nodes {
		g.Go(func() error {
			return n.Run(gctx)
		})
	}

	for _, r := range s.network.Relays {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil {
				log.Errorf("%s: %v; the link is down", r.Name(), err)
			}

			return nil
		})
	}

	log.Infof("simulation %s running %d nodes and %d relays",
		s.id, len(s.nodes), len(s.network.Relays))

	return g.Wait()
}

// Terminate releases everything the simulation owns. Outputs are flushed and
// closed. It is safe to call more than once.
func (s *Simulation) Terminate() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.terminated {
		return nil
	}

	s.terminated = true

	var err error

	if s.started {
		for _, c := range s.network.Managers {
			err = multierr.Append(err, c.Close())
		}
	} else {
		err = multierr.Append(err, s.network.Close())
	}

	if s.monitor != nil {
		err = multierr.Append(err, s.monitor.Close())
	}

	if s.capture != nil {
		err = multierr.Append(err, s.capture.Close())
	}

	if s.dataRecorder != nil {
		if s.started {
			s.runRecorder.End()
		}

		err = multierr.Append(err, s.dataRecorder.Close())
	}

	return err
}
