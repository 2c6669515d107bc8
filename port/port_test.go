package port

import (
	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/pipe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingHook struct {
	positions []*hooking.HookPos
	items     []any
}

func (h *recordingHook) Func(ctx hooking.HookCtx) {
	h.positions = append(h.positions, ctx.Pos)
	h.items = append(h.items, ctx.Item)
}

var _ = Describe("Direct port pair", func() {
	var (
		a, b Port
	)

	BeforeEach(func() {
		var err error
		a, b, err = NewDirectPair(
			End{Name: "Node0.Port0", Node: 0},
			End{Name: "Node1.Port0", Node: 1},
			pipe.MemFactory(1024),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(a.Close()).To(Succeed())
		Expect(b.Close()).To(Succeed())
	})

	It("should know its peer", func() {
		Expect(a.Peer()).To(Equal(1))
		Expect(b.Peer()).To(Equal(0))
		Expect(a.Kind()).To(Equal(Direct))
		Expect(a.Name()).To(Equal("Node0.Port0"))
	})

	It("should return nil when nothing arrived", func() {
		Expect(a.Recv()).To(BeNil())
	})

	It("should deliver packets in both directions", func() {
		Expect(a.Send(&packet.Packet{Src: 0, Dst: 1, Payload: []byte("ab")})).
			To(Succeed())
		Expect(b.Send(&packet.Packet{Src: 1, Dst: 0, Payload: []byte("c")})).
			To(Succeed())

		got := b.Recv()
		Expect(got).NotTo(BeNil())
		Expect(got.Payload).To(Equal([]byte("ab")))

		got = a.Recv()
		Expect(got).NotTo(BeNil())
		Expect(got.Payload).To(Equal([]byte("c")))
	})

	It("should return one packet per call in send order", func() {
		for i := 0; i < 5; i++ {
			Expect(a.Send(&packet.Packet{Src: 0, Dst: 1, Payload: []byte{byte(i)}})).
				To(Succeed())
		}

		for i := 0; i < 5; i++ {
			got := b.Recv()
			Expect(got).NotTo(BeNil())
			Expect(got.Payload).To(Equal([]byte{byte(i)}))
		}

		Expect(b.Recv()).To(BeNil())
	})

	It("should invoke send and receive hooks", func() {
		sendHook := &recordingHook{}
		recvHook := &recordingHook{}
		a.AcceptHook(sendHook)
		b.AcceptHook(recvHook)

		pkt := &packet.Packet{Src: 0, Dst: 1}
		Expect(a.Send(pkt)).To(Succeed())
		b.Recv()

		Expect(sendHook.positions).To(Equal([]*hooking.HookPos{HookPosPortSend}))
		Expect(sendHook.items[0]).To(BeIdenticalTo(pkt))
		Expect(recvHook.positions).To(Equal([]*hooking.HookPos{HookPosPortRecv}))
	})
})

var _ = Describe("Pipe port", func() {
	It("should drop a frame that does not fit", func() {
		inR, _ := pipe.New(1024)
		_, outW := pipe.New(8)
		p := NewPipePort("P", 1, Direct, inR, outW)
		hook := &recordingHook{}
		p.AcceptHook(hook)

		err := p.Send(&packet.Packet{Payload: make([]byte, 10)})

		Expect(err).To(MatchError(ErrDropped))
		Expect(hook.positions).To(Equal([]*hooking.HookPos{HookPosPortDrop}))
	})

	It("should refuse oversized payloads", func() {
		inR, _ := pipe.New(1024)
		_, outW := pipe.New(1024)
		p := NewPipePort("P", 1, Direct, inR, outW)

		err := p.Send(&packet.Packet{Payload: make([]byte, packet.PayloadMax+1)})

		Expect(err).To(MatchError(ErrDropped))
		Expect(err).To(MatchError(packet.ErrProtocol))
	})

	It("should reassemble a frame split across reads", func() {
		inR, inW := pipe.New(1024)
		_, outW := pipe.New(1024)
		p := NewPipePort("P", 1, Direct, inR, outW)

		frame, _ := (&packet.Packet{Src: 1, Dst: 0, Payload: []byte("hello")}).Encode()
		_, err := inW.TryWrite(frame[:3])
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Recv()).To(BeNil())

		_, err = inW.TryWrite(frame[3:])
		Expect(err).NotTo(HaveOccurred())

		got := p.Recv()
		Expect(got).NotTo(BeNil())
		Expect(got.Payload).To(Equal([]byte("hello")))
	})

	It("should discard broken framing and keep working", func() {
		inR, inW := pipe.New(1024)
		_, outW := pipe.New(1024)
		p := NewPipePort("P", 1, Direct, inR, outW)
		hook := &recordingHook{}
		p.AcceptHook(hook)

		_, err := inW.TryWrite([]byte{1, 0, 0, 250, 1, 2, 3})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Recv()).To(BeNil())
		Expect(hook.positions).To(ContainElement(HookPosPortDrop))

		frame, _ := (&packet.Packet{Src: 1, Dst: 0}).Encode()
		_, err = inW.TryWrite(frame)
		Expect(err).NotTo(HaveOccurred())

		got := p.Recv()
		Expect(got).NotTo(BeNil())
		Expect(got.Src).To(Equal(uint8(1)))
	})
})

var _ = Describe("Bridged port", func() {
	It("should expose the relay ends of its channels", func() {
		p, ends, err := NewBridged(
			End{Name: "Node0.Port0", Node: 0}, 127, "example.org:9000",
			pipe.MemFactory(1024))
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Kind()).To(Equal(Bridged))
		Expect(p.Peer()).To(Equal(127))
		Expect(p.(*bridgedPort).RemoteAddr()).To(Equal("example.org:9000"))

		Expect(p.Send(&packet.Packet{Src: 0, Dst: 5, Payload: []byte("out")})).
			To(Succeed())
		buf := make([]byte, packet.FrameMax)
		n, err := ends.Outbound.TryRead(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf[:n]).To(Equal([]byte{0, 5, 0, 3, 'o', 'u', 't'}))

		frame, _ := (&packet.Packet{Src: 5, Dst: 0, Payload: []byte("in")}).Encode()
		_, err = ends.Inbound.TryWrite(frame)
		Expect(err).NotTo(HaveOccurred())

		got := p.Recv()
		Expect(got).NotTo(BeNil())
		Expect(got.Payload).To(Equal([]byte("in")))
	})
})
