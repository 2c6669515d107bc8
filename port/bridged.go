package port

import (
	"github.com/sarchlab/netemu/pipe"
	"go.uber.org/multierr"
)

// RelayEnds are the channel ends of a bridged port that belong to the relays.
// The server relay writes what it receives from the network into Inbound; the
// client relay sends what it reads from Outbound to the network.
type RelayEnds struct {
	Inbound  pipe.Writer
	Outbound pipe.Reader
}

type bridgedPort struct {
	*pipePort

	remoteAddr string
}

// RemoteAddr returns the network address the link is bridged to.
func (p *bridgedPort) RemoteAddr() string {
	return p.remoteAddr
}

// NewBridged creates the node side of a bridged link together with the
// channel ends that the relays own. remote is the id that stands for the
// external peer.
func NewBridged(
	local End,
	remote int,
	remoteAddr string,
	factory pipe.Factory,
) (Port, RelayEnds, error) {
	inR, inW, err := factory()
	if err != nil {
		return nil, RelayEnds{}, err
	}

	outR, outW, err := factory()
	if err != nil {
		return nil, RelayEnds{}, multierr.Combine(err, inR.Close(), inW.Close())
	}

	p := &bridgedPort{
		pipePort:   newPipePort(local.Name, remote, Bridged, inR, outW),
		remoteAddr: remoteAddr,
	}

	return p, RelayEnds{Inbound: inW, Outbound: outR}, nil
}
