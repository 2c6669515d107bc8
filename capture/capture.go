// Package capture writes the frames that cross ports into a PCAP file.
//
// Frames are stored as they appear on the wire, under the first user-defined
// link type, so they can be inspected with any PCAP tool.
package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	logging "github.com/ipfs/go-log/v2"
	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/port"
)

var log = logging.Logger("netemu/capture")

// LinkType is the PCAP link type of netemu frames (LINKTYPE_USER0).
const LinkType = layers.LinkType(147)

// DefaultBuffer is the number of frames that can wait to be written.
const DefaultBuffer = 4096

type snapshot struct {
	data []byte
	when time.Time
}

// Trace is an open capture. It is a hook: attach it to the ports to watch.
// Only sent frames are captured so that each frame appears once.
type Trace struct {
	cancel  context.CancelFunc
	dropped atomic.Uint64
	errch   chan error
	snaps   chan snapshot
	once    sync.Once
	wc      io.WriteCloser
}

// Option configures a Trace.
type Option func(*options)

type options struct {
	buffer int
}

// WithBuffer sets how many frames can wait to be written before new ones
// are dropped.
func WithBuffer(n int) Option {
	return func(o *options) {
		o.buffer = n
	}
}

// New starts a capture that writes to wc.
func New(wc io.WriteCloser, opts ...Option) *Trace {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}

	runtimex.Assert(o.buffer > 0)

	ctx, cancel := context.WithCancel(context.Background())
	tr := &Trace{
		cancel: cancel,
		errch:  make(chan error, 1),
		snaps:  make(chan snapshot, o.buffer),
		wc:     wc,
	}

	go tr.saveLoop(ctx)

	return tr
}

// Func captures the frame of every packet sent through a hooked port.
func (tr *Trace) Func(ctx hooking.HookCtx) {
	if ctx.Pos != port.HookPosPortSend {
		return
	}

	pkt, ok := ctx.Item.(*packet.Packet)
	if !ok {
		return
	}

	frame, err := pkt.Encode()
	if err != nil {
		return
	}

	tr.Dump(frame)
}

// Dump queues a frame. If the queue is full the frame is dropped.
func (tr *Trace) Dump(frame []byte) {
	data := make([]byte, len(frame))
	copy(data, frame)

	select {
	case tr.snaps <- snapshot{data: data, when: time.Now()}:
	default:
		tr.dropped.Add(1)
	}
}

// Dropped returns the number of frames dropped because the queue was full.
func (tr *Trace) Dropped() uint64 {
	return tr.dropped.Load()
}

func (tr *Trace) saveLoop(ctx context.Context) {
	w := pcapgo.NewWriter(tr.wc)
	if err := w.WriteFileHeader(uint32(packet.FrameMax), LinkType); err != nil {
		tr.errch <- err
		return
	}

	for {
		select {
		case <-ctx.Done():
			tr.errch <- tr.drain(w)
			return
		case snap := <-tr.snaps:
			if err := tr.save(w, snap); err != nil {
				tr.errch <- err
				return
			}
		}
	}
}

func (tr *Trace) drain(w *pcapgo.Writer) error {
	for {
		select {
		case snap := <-tr.snaps:
			if err := tr.save(w, snap); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (tr *Trace) save(w *pcapgo.Writer, snap snapshot) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     snap.when,
		CaptureLength: len(snap.data),
		Length:        len(snap.data),
	}

	return w.WritePacket(ci, snap.data)
}

// Close stops the capture, writes the queued frames and closes the writer.
func (tr *Trace) Close() (err error) {
	tr.once.Do(func() {
		tr.cancel()

		err1 := <-tr.errch
		err2 := tr.wc.Close()

		if n := tr.Dropped(); n > 0 {
			log.Warnf("capture dropped %d frames", n)
		}

		err = errors.Join(err1, err2)
	})

	return err
}
