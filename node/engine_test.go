package node

import (
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netemu/hooking"
	"github.com/sarchlab/netemu/manager"
	"github.com/sarchlab/netemu/packet"
	"github.com/sarchlab/netemu/pipe"
	"github.com/sarchlab/netemu/port"
	gomock "go.uber.org/mock/gomock"
)

func hookFunc(f func(pos string)) hooking.Hook {
	return hooking.HookFunc(func(ctx hooking.HookCtx) {
		f(ctx.Pos.Name)
	})
}

type fixedReporter struct{}

func (fixedReporter) StatusDetail() any {
	return "detail"
}

var _ = Describe("Engine", func() {
	var (
		mockCtrl *gomock.Controller
		p0, p1   *MockPort
		mgr      *MockManagerConn
		e        *Engine
		executed []*Job
	)

	record := func(j *Job) {
		executed = append(executed, j)
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		p0 = NewMockPort(mockCtrl)
		p1 = NewMockPort(mockCtrl)
		mgr = NewMockManagerConn(mockCtrl)
		executed = nil

		e = MakeBuilder().
			WithID(3).
			WithKind("host").
			WithPorts([]port.Port{p0, p1}).
			WithManager(mgr).
			Build("host3")
		e.RegisterHandler(JobDeliver, record)
		e.RegisterHandler(JobSend, record)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic without an id", func() {
		Expect(func() { MakeBuilder().Build("x") }).To(Panic())
	})

	It("should do nothing when idle", func() {
		mgr.EXPECT().Poll().Return(nil, nil)
		p0.EXPECT().Recv().Return(nil)
		p1.EXPECT().Recv().Return(nil)

		Expect(e.Tick()).To(BeFalse())
		Expect(e.Status().Ticks).To(Equal(uint64(1)))
	})

	It("should poll the ports in index order and run one job per tick", func() {
		a := &packet.Packet{Src: 1, Dst: 3}
		b := &packet.Packet{Src: 2, Dst: 3}
		c := &packet.Packet{Src: 1, Dst: 3, Type: packet.TypeData}

		mgr.EXPECT().Poll().Return(nil, nil).AnyTimes()
		gomock.InOrder(
			p0.EXPECT().Recv().Return(nil),
			p1.EXPECT().Recv().Return(b),
			p0.EXPECT().Recv().Return(a),
			p1.EXPECT().Recv().Return(nil),
			p0.EXPECT().Recv().Return(c),
			p1.EXPECT().Recv().Return(nil),
		)

		Expect(e.Tick()).To(BeTrue())
		Expect(e.Tick()).To(BeTrue())
		Expect(e.Tick()).To(BeTrue())

		Expect(executed).To(HaveLen(3))
		Expect(executed[0].Packet).To(BeIdenticalTo(b))
		Expect(executed[0].InPort).To(Equal(1))
		Expect(executed[1].Packet).To(BeIdenticalTo(a))
		Expect(executed[1].InPort).To(Equal(0))
		Expect(executed[2].Packet).To(BeIdenticalTo(c))
		Expect(e.Status().Received).To(Equal(uint64(3)))
	})

	It("should hand manager commands to the command handler", func() {
		var got []manager.Command
		e.HandleCommands(func(cmd manager.Command) {
			got = append(got, cmd)
			e.Enqueue(&Job{Kind: JobSend, Dst: cmd.Host})
		})

		mgr.EXPECT().Poll().Return(&manager.Command{Op: manager.OpPing, Host: 4}, nil)
		p0.EXPECT().Recv().Return(nil)
		p1.EXPECT().Recv().Return(nil)

		Expect(e.Tick()).To(BeTrue())
		Expect(got).To(Equal([]manager.Command{{Op: manager.OpPing, Host: 4}}))
		Expect(executed).To(HaveLen(1))
		Expect(executed[0].Dst).To(Equal(4))
	})

	It("should stop polling a closed manager channel", func() {
		mgr.EXPECT().Poll().Return(nil, io.EOF).Times(1)
		p0.EXPECT().Recv().Return(nil).Times(2)
		p1.EXPECT().Recv().Return(nil).Times(2)

		e.Tick()
		e.Tick()
	})

	It("should survive a panicking handler", func() {
		e.RegisterHandler(JobDeliver, func(*Job) { panic("boom") })

		mgr.EXPECT().Poll().Return(nil, nil).Times(2)
		p0.EXPECT().Recv().Return(&packet.Packet{})
		p0.EXPECT().Recv().Return(nil)
		p1.EXPECT().Recv().Return(nil).Times(2)

		Expect(func() { e.Tick() }).NotTo(Panic())
		e.Tick()
	})

	It("should count sends and drops", func() {
		pkt := &packet.Packet{Src: 3, Dst: 9}

		p0.EXPECT().Send(pkt).Return(nil)
		p1.EXPECT().Send(pkt).Return(port.ErrDropped)
		p1.EXPECT().Name().Return("host3.link1").AnyTimes()

		e.Flood(pkt, NoPort)

		mgr.EXPECT().Poll().Return(nil, nil)
		p0.EXPECT().Recv().Return(nil)
		p1.EXPECT().Recv().Return(nil)
		e.Tick()

		Expect(e.Status().Sent).To(Equal(uint64(1)))
		Expect(e.Status().Dropped).To(Equal(uint64(1)))
	})

	It("should skip the excluded port when flooding", func() {
		pkt := &packet.Packet{}
		p1.EXPECT().Send(pkt).Return(nil)

		e.Flood(pkt, 0)
	})

	It("should reject sends on unknown ports", func() {
		err := e.Send(7, &packet.Packet{})
		Expect(errors.Is(err, port.ErrDropped)).To(BeTrue())
	})

	It("should forward replies to the manager", func() {
		mgr.EXPECT().Reply("None 3").Return(nil)
		e.Reply("None 3")
	})

	It("should publish the reporter detail", func() {
		e.SetStatusReporter(fixedReporter{})

		mgr.EXPECT().Poll().Return(nil, nil)
		p0.EXPECT().Recv().Return(nil)
		p1.EXPECT().Recv().Return(nil)
		e.Tick()

		s := e.Status()
		Expect(s.ID).To(Equal(3))
		Expect(s.Kind).To(Equal("host"))
		Expect(s.Detail).To(Equal("detail"))
	})

	It("should invoke hooks before executing a job", func() {
		var positions []string
		e.AcceptHook(hookFunc(func(pos string) {
			positions = append(positions, pos)
		}))
		e.Enqueue(&Job{Kind: JobSend})

		mgr.EXPECT().Poll().Return(nil, nil)
		p0.EXPECT().Recv().Return(nil)
		p1.EXPECT().Recv().Return(nil)
		e.Tick()

		Expect(positions).To(Equal([]string{HookPosJobExecute.Name}))
	})
})

var _ = Describe("Engine over pipes", func() {
	It("should run until cancelled and close its ports", func() {
		factory := pipe.MemFactory(pipe.DefaultCapacity)
		local, remote, err := port.NewDirectPair(
			port.End{Name: "a", Node: 0}, port.End{Name: "b", Node: 1}, factory)
		Expect(err).NotTo(HaveOccurred())

		e := MakeBuilder().
			WithID(0).
			WithPorts([]port.Port{local}).
			WithTickInterval(time.Millisecond).
			Build("node0")

		delivered := make(chan *packet.Packet, 10)
		e.RegisterHandler(JobDeliver, func(j *Job) {
			delivered <- j.Packet
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- e.Run(ctx)
		}()

		for i := 0; i < 5; i++ {
			Expect(remote.Send(&packet.Packet{Src: 1, Dst: 0,
				Payload: []byte{byte(i)}})).To(Succeed())
		}

		for i := 0; i < 5; i++ {
			var p *packet.Packet
			Eventually(delivered, time.Second).Should(Receive(&p))
			Expect(p.Payload).To(Equal([]byte{byte(i)}))
		}

		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))

		Expect(remote.Send(&packet.Packet{})).To(MatchError(port.ErrDropped))
	})
})
