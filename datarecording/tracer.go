package datarecording

import (
	"time"

	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/port"
)

// Tables written by a Tracer.
const (
	PacketTable = "packet"
	JobTable    = "job"
)

// PacketEntry is one packet event on a port.
type PacketEntry struct {
	Time   int64
	Port   string
	Event  string
	Src    int
	Dst    int
	Type   string
	Length int
	Reason string
}

// JobEntry is one job executed by a node.
type JobEntry struct {
	Time   int64
	Node   string
	Kind   string
	Src    int
	Dst    int
	InPort int
}

// Tracer is a hook that records port and job events. Attach it to ports and
// engines before they run.
type Tracer struct {
	recorder DataRecorder
	clock    func() time.Time
}

// NewTracer creates the trace tables in the recorder.
func NewTracer(recorder DataRecorder) *Tracer {
	recorder.CreateTable(PacketTable, PacketEntry{})
	recorder.CreateTable(JobTable, JobEntry{})

	return &Tracer{
		recorder: recorder,
		clock:    time.Now,
	}
}

type named interface {
	Name() string
}

// Func records the event at the hook site.
func (t *Tracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case port.HookPosPortSend:
		t.recordPacket(ctx, "send")
	case port.HookPosPortRecv:
		t.recordPacket(ctx, "recv")
	case port.HookPosPortDrop:
		t.recordPacket(ctx, "drop")
	case node.HookPosJobExecute:
		t.recordJob(ctx)
	}
}

func (t *Tracer) recordPacket(ctx hooking.HookCtx, event string) {
	e := PacketEntry{
		Time:  t.clock().UnixNano(),
		Event: event,
	}

	if n, ok := ctx.Domain.(named); ok {
		e.Port = n.Name()
	}

	if pkt, ok := ctx.Item.(*packet.Packet); ok && pkt != nil {
		e.Src = int(pkt.Src)
		e.Dst = int(pkt.Dst)
		e.Type = pkt.Type.String()
		e.Length = pkt.Length()
	}

	if err, ok := ctx.Detail.(error); ok {
		e.Reason = err.Error()
	}

	t.recorder.InsertData(PacketTable, e)
}

func (t *Tracer) recordJob(ctx hooking.HookCtx) {
	j, ok := ctx.Item.(*node.Job)
	if !ok {
		return
	}

	e := JobEntry{
		Time:   t.clock().UnixNano(),
		Kind:   j.Kind.String(),
		Src:    -1,
		Dst:    j.Dst,
		InPort: j.InPort,
	}

	if n, ok := ctx.Domain.(named); ok {
		e.Node = n.Name()
	}

	if j.Packet != nil {
		e.Src = int(j.Packet.Src)
		e.Dst = int(j.Packet.Dst)
	}

	t.recorder.InsertData(JobTable, e)
}
