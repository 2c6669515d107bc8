package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/sarchlab/netemu/manager"
	"github.com/sarchlab/netemu/node"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeNode struct {
	status node.Status
}

func (n *fakeNode) Name() string         { return n.status.Name }
func (n *fakeNode) ID() int              { return n.status.ID }
func (n *fakeNode) Status() *node.Status { return &n.status }

type fakeCommander struct {
	hostID int
	got    []manager.Command
	reply  string
	err    error
}

func (c *fakeCommander) HostID() int { return c.hostID }

func (c *fakeCommander) Do(
	_ context.Context,
	cmd manager.Command,
) (string, error) {
	c.got = append(c.got, cmd)
	return c.reply, c.err
}

var _ = Describe("Monitor", func() {
	var (
		m       *Monitor
		handler http.Handler
	)

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

		return rec
	}

	post := func(url, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
		handler.ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		m = NewMonitor()
		m.RegisterNode(&fakeNode{status: node.Status{
			ID: 0, Name: "host0", Kind: "host", QueueLen: 1, Dropped: 5,
		}})
		m.RegisterNode(&fakeNode{status: node.Status{
			ID: 1, Name: "switch1", Kind: "switch", QueueLen: 7,
		}})
		m.RegisterNode(&fakeNode{status: node.Status{
			ID: 2, Name: "host2", Kind: "host", QueueLen: 3, Dropped: 9,
		}})

		handler = m.Handler()
	})

	It("should list nodes", func() {
		rec := get("/api/list_nodes")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var nodes []nodeRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &nodes)).To(Succeed())
		Expect(nodes).To(Equal([]nodeRsp{
			{ID: 0, Name: "host0", Kind: "host"},
			{ID: 1, Name: "switch1", Kind: "switch"},
			{ID: 2, Name: "host2", Kind: "host"},
		}))
	})

	It("should serialize a node by id or by name", func() {
		byID := get("/api/node/1")
		Expect(byID.Code).To(Equal(http.StatusOK))
		Expect(byID.Body.String()).To(ContainSubstring("switch1"))

		byName := get("/api/node/switch1")
		Expect(byName.Code).To(Equal(http.StatusOK))
		Expect(byName.Body.String()).To(Equal(byID.Body.String()))
	})

	It("should answer 404 for an unknown node", func() {
		Expect(get("/api/node/42").Code).To(Equal(http.StatusNotFound))
	})

	It("should sort queues by length", func() {
		rec := get("/api/queues")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var queues []queueRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &queues)).To(Succeed())
		Expect(queues).To(HaveLen(3))
		Expect(queues[0].Node).To(Equal("switch1"))
		Expect(queues[1].Node).To(Equal("host2"))
		Expect(queues[2].Node).To(Equal("host0"))
	})

	It("should sort queues by drops with limit and offset", func() {
		rec := get("/api/queues?sort=dropped&limit=1&offset=1")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var queues []queueRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &queues)).To(Succeed())
		Expect(queues).To(Equal([]queueRsp{
			{Node: "host0", QueueLen: 1, Dropped: 5},
		}))
	})

	It("should reject bad queue parameters", func() {
		Expect(get("/api/queues?sort=size").Code).
			To(Equal(http.StatusBadRequest))
		Expect(get("/api/queues?limit=-1").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should report process resources", func() {
		rec := get("/api/resource")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var rsp resourceRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should forward commands to a host", func() {
		c := &fakeCommander{hostID: 0, reply: "Ping acked by host 2"}
		m.RegisterCommander(c)

		rec := post("/api/command/0", "p 2\n")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var rsp commandRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Reply).To(Equal("Ping acked by host 2"))
		Expect(c.got).To(Equal([]manager.Command{
			{Op: manager.OpPing, Host: 2},
		}))
	})

	It("should reject malformed commands", func() {
		m.RegisterCommander(&fakeCommander{hostID: 0})

		Expect(post("/api/command/0", "x").Code).
			To(Equal(http.StatusBadRequest))
		Expect(post("/api/command/9", "s").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should report a command that did not complete", func() {
		m.RegisterCommander(&fakeCommander{
			hostID: 0,
			err:    errors.New("no reply"),
		})

		Expect(post("/api/command/0", "s").Code).
			To(Equal(http.StatusGatewayTimeout))
	})

	It("should serve the page", func() {
		rec := get("/")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("netemu monitor"))
	})

	It("should start and stop the server", func() {
		url, err := m.WithPortNumber(0).StartServer()
		Expect(err).NotTo(HaveOccurred())

		rsp, err := http.Get(url + "/api/list_nodes")
		Expect(err).NotTo(HaveOccurred())
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(rsp.Body.Close()).To(Succeed())

		Expect(m.Close()).To(Succeed())
	})
})
