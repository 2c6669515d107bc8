package simulation

import (
	"fmt"
	"os"

	"github.com/rs/xid"
	"github.com/sarchlab/netemu/capture"
	"github.com/sarchlab/netemu/config"
	"github.com/sarchlab/netemu/datarecording"
	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/host"
	"github.com/sarchlab/netemu/monitoring"
	"github.com/sarchlab/netemu/pipe"
	"github.com/sarchlab/netemu/switching"
	"github.com/sarchlab/netemu/topology"
	"go.uber.org/multierr"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg         config.Config
	topology    *topology.Topology
	monitorOn   bool
	monitorPort int
	openBrowser bool
	recordOn    bool
	recordName  string
	capturePath string
	dirs        map[int]string
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: config.Default(),
	}
}

// WithConfig sets the runtime settings.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithTopology sets the network to build.
func (b Builder) WithTopology(t *topology.Topology) Builder {
	b.topology = t
	return b
}

// WithMonitor serves the monitor on the given port. Port 0 picks a free one.
func (b Builder) WithMonitor(port int) Builder {
	b.monitorOn = true
	b.monitorPort = port

	return b
}

// WithBrowser opens the monitor in a browser.
func (b Builder) WithBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithRecording records every packet and job into a SQLite database. An
// empty name derives one from the simulation id.
func (b Builder) WithRecording(name string) Builder {
	b.recordOn = true
	b.recordName = name

	return b
}

// WithCapture writes the frames sent on every port to a PCAP file.
func (b Builder) WithCapture(path string) Builder {
	b.capturePath = path
	return b
}

// WithHostDir sets the initial directory of a host.
func (b Builder) WithHostDir(hostID int, dir string) Builder {
	dirs := make(map[int]string, len(b.dirs)+1)
	for k, v := range b.dirs {
		dirs[k] = v
	}

	dirs[hostID] = dir
	b.dirs = dirs

	return b
}

func (b Builder) topologyMustBeGiven() {
	if b.topology == nil {
		panic("simulation builder requires a topology")
	}
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.openBrowser {
		panic("browser cannot be opened when monitoring is disabled")
	}
}

// Build creates every node, relay and output of the simulation. Nothing runs
// until Run is called.
func (b Builder) Build() (*Simulation, error) {
	b.topologyMustBeGiven()
	b.parametersMustBeValid()

	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		id:       xid.New().String(),
		hosts:    make(map[int]*host.Comp),
		switches: make(map[int]*switching.Comp),
	}

	network, err := topology.MakeBuilder().
		WithPipeFactory(b.pipeFactory()).
		WithRelayPollInterval(b.cfg.RelayPollInterval).
		WithDialMaxInterval(b.cfg.DialMaxInterval).
		Build(b.topology)
	if err != nil {
		return nil, err
	}

	s.network = network

	b.buildNodes(s)

	if err := b.buildOutputs(s); err != nil {
		return nil, multierr.Append(err, s.Terminate())
	}

	return s, nil
}

func (b Builder) pipeFactory() pipe.Factory {
	if b.cfg.OSPipes {
		return pipe.OSFactory()
	}

	return pipe.MemFactory(b.cfg.PipeCapacity)
}

func (b Builder) buildNodes(s *Simulation) {
	for _, slot := range s.network.Nodes {
		switch slot.Kind {
		case topology.Host:
			h := host.MakeBuilder().
				WithID(slot.ID).
				WithPorts(slot.Ports).
				WithManager(slot.Manager).
				WithDir(b.dirs[slot.ID]).
				WithPingTimeout(b.cfg.PingTimeoutTicks).
				WithChunkSize(b.cfg.ChunkSize).
				WithTickInterval(b.cfg.TickInterval).
				Build(slot.Name())

			s.hosts[slot.ID] = h
			s.nodes = append(s.nodes, h)
		case topology.Switch:
			sw := switching.MakeBuilder().
				WithID(slot.ID).
				WithPorts(slot.Ports).
				WithTableCapacity(b.cfg.TableCapacity).
				WithTickInterval(b.cfg.TickInterval).
				Build(slot.Name())

			s.switches[slot.ID] = sw
			s.nodes = append(s.nodes, sw)
		}
	}
}

func (b Builder) buildOutputs(s *Simulation) error {
	if b.recordOn {
		name := b.recordName
		if name == "" {
			name = "netemu_" + s.id
		}

		s.dataRecorder = datarecording.New(name)
		s.runRecorder = datarecording.NewRunRecorder(s.dataRecorder)
		s.tracer = datarecording.NewTracer(s.dataRecorder)

		s.attach(s.tracer, true)
	}

	if b.capturePath != "" {
		f, err := os.Create(b.capturePath)
		if err != nil {
			return fmt.Errorf("simulation: capture: %w", err)
		}

		s.capture = capture.New(f)

		s.attach(s.capture, false)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().
			WithPortNumber(b.monitorPort).
			WithBrowser(b.openBrowser)

		for _, n := range s.nodes {
			s.monitor.RegisterNode(n)
		}

		for _, c := range s.network.Managers {
			s.monitor.RegisterCommander(c)
		}

		if _, err := s.monitor.StartServer(); err != nil {
			return err
		}
	}

	return nil
}

// attach hooks h to every port and, optionally, to every node.
func (s *Simulation) attach(h hooking.Hook, nodes bool) {
	for _, n := range s.nodes {
		for _, p := range n.Ports() {
			p.AcceptHook(h)
		}

		if nodes {
			n.AcceptHook(h)
		}
	}
}
