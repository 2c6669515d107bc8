// Package bridge relays the bytes of bridged ports over TCP.
//
// A bridged link is served by two relays. The server relay accepts inbound
// connections and feeds every frame it receives into the port's inbound
// channel. The client relay dials the remote end, retrying with backoff until
// it succeeds, and sends everything the node writes to the port's outbound
// channel. The remote side runs the mirror pair, so each TCP connection
// carries one direction of the link.
package bridge

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("netemu/bridge")

// A Relay is an independently running unit that moves bytes between a
// channel end and a socket.
type Relay interface {
	Name() string

	// Run relays until the context is cancelled or the owned channel end is
	// closed by the node.
	Run(ctx context.Context) error
}

// TransportError reports a socket failure of a relay.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
