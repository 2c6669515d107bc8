// Package monitoring serves a running network over HTTP. It shows node status
// snapshots and process resources, and it can issue manager commands.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/browser"
	"github.com/sarchlab/netemu/manager"
	"github.com/sarchlab/netemu/monitoring/web"
	"github.com/sarchlab/netemu/node"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

var log = logging.Logger("netemu/monitoring")

// CommandTimeout bounds how long a command issued through the monitor waits
// for the host to answer.
const CommandTimeout = 5 * time.Second

// A Node is anything that publishes status snapshots.
type Node interface {
	Name() string
	ID() int
	Status() *node.Status
}

// A Commander issues manager commands to one host.
type Commander interface {
	HostID() int
	Do(ctx context.Context, cmd manager.Command) (string, error)
}

// Monitor turns a running network into a server.
type Monitor struct {
	lock       sync.RWMutex
	nodes      []Node
	commanders map[int]Commander

	portNumber  int
	openBrowser bool
	server      *http.Server
	url         string
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		commanders: make(map[int]Commander),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		log.Warnf("port number %d is not allowed for the monitor, "+
			"using a random port instead", portNumber)

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser opens the monitor page in a browser once the server is up.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// RegisterNode registers a node to be monitored.
func (m *Monitor) RegisterNode(n Node) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.nodes = append(m.nodes, n)
}

// RegisterCommander makes a host controllable through the monitor.
func (m *Monitor) RegisterCommander(c Commander) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.commanders[c.HostID()] = c
}

// Handler returns the HTTP handler of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_nodes", m.listNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/node/{id}", m.nodeDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/field/{json}", m.fieldValue).Methods(http.MethodGet)
	r.HandleFunc("/api/queues", m.listQueues).Methods(http.MethodGet)
	r.HandleFunc("/api/command/{id}", m.command).Methods(http.MethodPost)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServerFS(web.Assets()))

	return r
}

// StartServer starts serving in the background and returns the URL of the
// monitor.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitoring: listen: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring network with %s\n", url)

	m.url = url

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("monitor server stopped: %s", err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Warnf("cannot open browser: %s", err)
		}
	}

	return url, nil
}

// URL returns where the monitor is served, or "" before StartServer.
func (m *Monitor) URL() string {
	return m.url
}

// Close stops the server.
func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return m.server.Shutdown(ctx)
}

type nodeRsp struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	rsp := make([]nodeRsp, 0, len(m.nodes))
	for _, n := range m.nodes {
		rsp = append(rsp, nodeRsp{
			ID:   n.ID(),
			Name: n.Name(),
			Kind: n.Status().Kind,
		})
	}

	writeJSON(w, rsp)
}

func (m *Monitor) nodeDetails(w http.ResponseWriter, r *http.Request) {
	n := m.findNodeOr404(w, mux.Vars(r)["id"])
	if n == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(n.Status())
	serializer.SetMaxDepth(3)

	if err := serializer.Serialize(w); err != nil {
		log.Errorf("serialize %s: %s", n.Name(), err)
	}
}

type fieldReq struct {
	Node      string `json:"node,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n := m.findNodeOr404(w, req.Node)
	if n == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(n.Status())
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := serializer.Serialize(w); err != nil {
		log.Errorf("serialize %s: %s", n.Name(), err)
	}
}

type queueRsp struct {
	Node     string `json:"node"`
	QueueLen int    `json:"queue_len"`
	Dropped  uint64 `json:"dropped"`
}

func (m *Monitor) listQueues(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := queuesParseParams(r)
	if err != nil {
		http.Error(w, "Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, m.sortAndSelectQueues(sortMethod, limit, offset))
}

func queuesParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "length"
	}

	if sortMethod != "length" && sortMethod != "dropped" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `length` and `dropped`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return "", 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return "", 0, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}

	return v, nil
}

func (m *Monitor) sortAndSelectQueues(
	sortMethod string,
	limit, offset int,
) []queueRsp {
	m.lock.RLock()
	queues := make([]queueRsp, 0, len(m.nodes))

	for _, n := range m.nodes {
		s := n.Status()
		queues = append(queues, queueRsp{
			Node:     n.Name(),
			QueueLen: s.QueueLen,
			Dropped:  s.Dropped,
		})
	}
	m.lock.RUnlock()

	sort.SliceStable(queues, func(i, j int) bool {
		if sortMethod == "dropped" && queues[i].Dropped != queues[j].Dropped {
			return queues[i].Dropped > queues[j].Dropped
		}

		return queues[i].QueueLen > queues[j].QueueLen
	})

	if offset > len(queues) {
		offset = len(queues)
	}

	end := len(queues)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return queues[offset:end]
}

type commandRsp struct {
	Command string `json:"command"`
	Reply   string `json:"reply,omitempty"`
}

func (m *Monitor) command(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Host id must be a number", http.StatusBadRequest)
		return
	}

	m.lock.RLock()
	c, ok := m.commanders[id]
	m.lock.RUnlock()

	if !ok {
		http.Error(w, "Host not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, manager.MaxLine))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd, err := manager.ParseCommand(strings.TrimSpace(string(body)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), CommandTimeout)
	defer cancel()

	reply, err := c.Do(ctx, cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}

	writeJSON(w, commandRsp{Command: cmd.String(), Reply: reply})
}

func (m *Monitor) findNodeOr404(w http.ResponseWriter, key string) Node {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, n := range m.nodes {
		if n.Name() == key || strconv.Itoa(n.ID()) == key {
			return n
		}
	}

	http.Error(w, "Node not found", http.StatusNotFound)

	return nil
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write response: %s", err)
	}
}
