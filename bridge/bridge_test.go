package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/pipe"
	"github.com/sarchlab/netemu/port"
)

func freeAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	addr := l.Addr().String()
	Expect(l.Close()).To(Succeed())

	return addr
}

var _ = Describe("Bridge", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		done   chan error
	)

	start := func(r Relay) {
		go func() {
			done <- r.Run(ctx)
		}()
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 8)
	})

	AfterEach(func() {
		cancel()
	})

	It("should carry packets both ways over a loopback link", func() {
		factory := pipe.MemFactory(pipe.DefaultCapacity)

		a, aEnds, err := port.NewBridged(
			port.End{Name: "h0.br", Node: 0}, 1, "", factory)
		Expect(err).NotTo(HaveOccurred())
		b, bEnds, err := port.NewBridged(
			port.End{Name: "h1.br", Node: 1}, 0, "", factory)
		Expect(err).NotTo(HaveOccurred())

		sa, err := Listen("a.server", "127.0.0.1:0", aEnds.Inbound)
		Expect(err).NotTo(HaveOccurred())
		sb, err := Listen("b.server", "127.0.0.1:0", bEnds.Inbound)
		Expect(err).NotTo(HaveOccurred())

		start(sa)
		start(sb)
		start(NewClient("a.client", sb.Addr().String(), aEnds.Outbound))
		start(NewClient("b.client", sa.Addr().String(), bEnds.Outbound))

		Expect(a.Send(&packet.Packet{
			Src: 0, Dst: 1, Type: packet.TypeData, Payload: []byte("hello"),
		})).To(Succeed())

		var got *packet.Packet
		Eventually(func() *packet.Packet {
			got = b.Recv()
			return got
		}, time.Second, time.Millisecond).ShouldNot(BeNil())
		Expect(got.Payload).To(Equal([]byte("hello")))

		Expect(b.Send(&packet.Packet{
			Src: 1, Dst: 0, Type: packet.TypePingReply,
		})).To(Succeed())

		Eventually(a.Recv, time.Second, time.Millisecond).ShouldNot(BeNil())
	})

	It("should keep dialing until the remote end listens", func() {
		in, out := pipe.New(pipe.DefaultCapacity)
		addr := freeAddr()

		c := NewClient("client", addr, in).WithMaxBackoff(20 * time.Millisecond)
		start(c)

		time.Sleep(100 * time.Millisecond)

		rin, rout := pipe.New(pipe.DefaultCapacity)
		s, err := Listen("server", addr, rout)
		Expect(err).NotTo(HaveOccurred())
		start(s)

		frame, err := (&packet.Packet{Src: 3, Dst: 4}).Encode()
		Expect(err).NotTo(HaveOccurred())
		_, err = out.TryWrite(frame)
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, packet.FrameMax)
		Eventually(func() int {
			n, _ := rin.TryRead(buf)
			return n
		}, 2*time.Second, time.Millisecond).Should(Equal(packet.HeaderSize))
	})

	It("should fail to listen on a taken address", func() {
		_, w := pipe.New(pipe.DefaultCapacity)
		s, err := Listen("first", "127.0.0.1:0", w)
		Expect(err).NotTo(HaveOccurred())
		defer s.listener.Close()

		_, err = Listen("second", s.Addr().String(), w)

		var terr *TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
		Expect(terr.Op).To(Equal("listen"))
	})

	It("should drop a connection that sends a broken frame", func() {
		r, w := pipe.New(pipe.DefaultCapacity)
		s, err := Listen("server", "127.0.0.1:0", w)
		Expect(err).NotTo(HaveOccurred())
		start(s)

		conn, err := net.Dial("tcp", s.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte{1, 2, 0, 200})
		Expect(err).NotTo(HaveOccurred())

		Expect(conn.SetReadDeadline(time.Now().Add(time.Second))).To(Succeed())
		_, err = conn.Read(make([]byte, 1))
		Expect(err).To(HaveOccurred())

		_, err = r.TryRead(make([]byte, 16))
		Expect(err).To(MatchError(pipe.ErrWouldBlock))
	})

	It("should stop and close its channel end on cancellation", func() {
		r, w := pipe.New(pipe.DefaultCapacity)
		s, err := Listen("server", "127.0.0.1:0", w)
		Expect(err).NotTo(HaveOccurred())
		start(s)

		cancel()

		Eventually(done, time.Second).Should(Receive(BeNil()))

		_, err = r.TryRead(make([]byte, 16))
		Expect(err).To(MatchError(io.EOF))
	})
})
