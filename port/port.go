// Package port provides the endpoints that nodes use to exchange packets.
//
// Every port is backed by two non-blocking byte channels, one per direction.
// A direct port talks to another node's port through local pipes. A bridged
// port talks to a pair of relays that carry the bytes over TCP. Nodes cannot
// tell the two apart.
package port

import (
	"errors"
	"fmt"

	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/pipe"
	"go.uber.org/multierr"
)

// HookPosPortSend marks a packet written to the outbound channel.
var HookPosPortSend = &hooking.HookPos{Name: "Port Send"}

// HookPosPortRecv marks a packet taken from the inbound channel.
var HookPosPortRecv = &hooking.HookPos{Name: "Port Recv"}

// HookPosPortDrop marks a packet that was dropped, either because the
// outbound channel was full or because the inbound framing was broken. The
// hook detail carries the reason.
var HookPosPortDrop = &hooking.HookPos{Name: "Port Drop"}

// ErrDropped is returned by Send when the frame could not be written.
var ErrDropped = errors.New("packet dropped")

// Kind tells how a port is realized.
type Kind int

// Port kinds.
const (
	Direct Kind = iota
	Bridged
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Bridged:
		return "bridged"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// A Port is a node's endpoint of one link. It is owned by exactly one node.
type Port interface {
	hooking.Hookable

	Name() string

	// Peer returns the id of the node at the other end of the link.
	Peer() int
	Kind() Kind

	// Send writes the packet without blocking. Delivery is best effort: if
	// the channel cannot take the whole frame the packet is dropped and an
	// error wrapping ErrDropped is returned.
	Send(pkt *packet.Packet) error

	// Recv returns the next complete packet or nil if none is available. It
	// never blocks.
	Recv() *packet.Packet

	Close() error
}

// An End identifies one side of a link.
type End struct {
	Name string
	Node int
}

// pipePort implements Port over a pipe pair.
type pipePort struct {
	hooking.HookableBase

	name string
	peer int
	kind Kind

	in  pipe.Reader
	out pipe.Writer

	rbuf    []byte
	scratch []byte
}

// NewPipePort wraps an existing pipe pair into a port.
func NewPipePort(
	name string,
	peer int,
	kind Kind,
	in pipe.Reader,
	out pipe.Writer,
) Port {
	return newPipePort(name, peer, kind, in, out)
}

func newPipePort(
	name string,
	peer int,
	kind Kind,
	in pipe.Reader,
	out pipe.Writer,
) *pipePort {
	return &pipePort{
		name:    name,
		peer:    peer,
		kind:    kind,
		in:      in,
		out:     out,
		scratch: make([]byte, packet.FrameMax),
	}
}

func (p *pipePort) Name() string {
	return p.name
}

func (p *pipePort) Peer() int {
	return p.peer
}

func (p *pipePort) Kind() Kind {
	return p.kind
}

func (p *pipePort) Send(pkt *packet.Packet) error {
	frame, err := pkt.Encode()
	if err != nil {
		p.drop(pkt, err)
		return fmt.Errorf("%w: %w", ErrDropped, err)
	}

	n, err := p.out.TryWrite(frame)
	if err == nil && n != len(frame) {
		err = fmt.Errorf("short write of %d/%d bytes", n, len(frame))
	}

	if err != nil {
		p.drop(pkt, err)
		return fmt.Errorf("%w: %w", ErrDropped, err)
	}

	if p.NumHooks() > 0 {
		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosPortSend,
			Item:   pkt,
		})
	}

	return nil
}

func (p *pipePort) Recv() *packet.Packet {
	if !p.frameBuffered() {
		n, _ := p.in.TryRead(p.scratch)
		if n > 0 {
			p.rbuf = append(p.rbuf, p.scratch[:n]...)
		}
	}

	size, err := packet.FrameLen(p.rbuf)
	if err != nil {
		p.rbuf = nil
		p.drop(nil, err)

		return nil
	}

	if size == 0 || len(p.rbuf) < size {
		return nil
	}

	pkt, err := packet.Decode(p.rbuf[:size])
	p.consume(size)

	if err != nil {
		p.drop(nil, err)
		return nil
	}

	if p.NumHooks() > 0 {
		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosPortRecv,
			Item:   pkt,
		})
	}

	return pkt
}

func (p *pipePort) frameBuffered() bool {
	size, err := packet.FrameLen(p.rbuf)
	return err == nil && size > 0 && len(p.rbuf) >= size
}

func (p *pipePort) consume(size int) {
	rest := len(p.rbuf) - size
	if rest == 0 {
		p.rbuf = p.rbuf[:0]
		return
	}

	copy(p.rbuf, p.rbuf[size:])
	p.rbuf = p.rbuf[:rest]
}

func (p *pipePort) drop(pkt *packet.Packet, reason error) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosPortDrop,
		Item:   pkt,
		Detail: reason,
	})
}

func (p *pipePort) Close() error {
	return multierr.Combine(p.in.Close(), p.out.Close())
}

// NewDirectPair creates the two ports of a direct link, one channel per
// direction.
func NewDirectPair(a, b End, factory pipe.Factory) (Port, Port, error) {
	abR, abW, err := factory()
	if err != nil {
		return nil, nil, err
	}

	baR, baW, err := factory()
	if err != nil {
		return nil, nil, multierr.Combine(err, abR.Close(), abW.Close())
	}

	pa := newPipePort(a.Name, b.Node, Direct, baR, abW)
	pb := newPipePort(b.Name, a.Node, Direct, abR, baW)

	return pa, pb, nil
}
