package topology

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse reads the text form of a topology:
//
//	<node count>
//	H|S <id>          one line per node
//	<link count>
//	P <id0> <id1>     direct link
//	S <id0> [<local-domain>] <listen-port> <remote-domain> <remote-port>
//
// Blank lines and lines starting with '#' are ignored. The result is
// validated.
func Parse(r io.Reader) (*Topology, error) {
	p := &textParser{scanner: bufio.NewScanner(r)}

	t, err := p.parse()
	if err != nil {
		return nil, err
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

type textParser struct {
	scanner *bufio.Scanner
	line    int
}

func (p *textParser) next() ([]string, error) {
	for p.scanner.Scan() {
		p.line++

		text := strings.TrimSpace(p.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		return strings.Fields(text), nil
	}

	if err := p.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, configErrorf(p.line, "unexpected end of input")
}

func (p *textParser) count(what string) (int, error) {
	f, err := p.next()
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(f[0])
	if len(f) != 1 || err != nil || n < 0 {
		return 0, configErrorf(p.line, "bad %s count %q", what,
			strings.Join(f, " "))
	}

	return n, nil
}

func (p *textParser) parse() (*Topology, error) {
	t := &Topology{}

	numNodes, err := p.count("node")
	if err != nil {
		return nil, err
	}

	for i := 0; i < numNodes; i++ {
		n, err := p.node()
		if err != nil {
			return nil, err
		}

		if n.ID != i {
			return nil, configErrorf(p.line,
				"node id %d does not match declaration order %d", n.ID, i)
		}

		t.Nodes = append(t.Nodes, n)
	}

	numLinks, err := p.count("link")
	if err != nil {
		return nil, err
	}

	for i := 0; i < numLinks; i++ {
		l, err := p.link()
		if err != nil {
			return nil, err
		}

		t.Links = append(t.Links, l)
	}

	return t, nil
}

func (p *textParser) node() (Node, error) {
	f, err := p.next()
	if err != nil {
		return Node{}, err
	}

	if len(f) != 2 {
		return Node{}, configErrorf(p.line, "node needs a kind and an id")
	}

	var n Node

	switch f[0] {
	case "H":
		n.Kind = Host
	case "S":
		n.Kind = Switch
	default:
		return Node{}, configErrorf(p.line, "unknown node kind %q", f[0])
	}

	n.ID, err = p.id(f[1])

	return n, err
}

func (p *textParser) link() (Link, error) {
	f, err := p.next()
	if err != nil {
		return Link{}, err
	}

	switch {
	case f[0] == "P" && len(f) == 3:
		l := Link{Kind: Direct}
		if l.Node0, err = p.id(f[1]); err != nil {
			return Link{}, err
		}

		l.Node1, err = p.id(f[2])

		return l, err
	case f[0] == "S" && (len(f) == 5 || len(f) == 6):
		l := Link{Kind: Bridged}
		if l.Node0, err = p.id(f[1]); err != nil {
			return Link{}, err
		}

		l.Node1 = l.Node0 + MaxHosts

		rest := f[2:]
		if len(rest) == 4 {
			l.LocalDomain, rest = rest[0], rest[1:]
		}

		l.ListenPort = rest[0]
		l.RemoteDomain = rest[1]
		l.RemotePort = rest[2]

		return l, nil
	default:
		return Link{}, configErrorf(p.line, "bad link %q", strings.Join(f, " "))
	}
}

func (p *textParser) id(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, configErrorf(p.line, "bad node id %q", s)
	}

	return id, nil
}

type yamlTopology struct {
	Nodes []string   `yaml:"nodes"`
	Links []yamlLink `yaml:"links"`
}

type yamlLink struct {
	Direct []int `yaml:"direct,omitempty"`
	Bridge *struct {
		Node         int    `yaml:"node"`
		LocalDomain  string `yaml:"local_domain,omitempty"`
		ListenPort   int    `yaml:"listen_port"`
		RemoteDomain string `yaml:"remote_domain"`
		RemotePort   int    `yaml:"remote_port"`
	} `yaml:"bridge,omitempty"`
}

// ParseYAML reads a topology written as YAML:
//
//	nodes: [host, host, switch]
//	links:
//	  - direct: [0, 2]
//	  - bridge: {node: 1, listen_port: 9000,
//	             remote_domain: peer.example, remote_port: 9001}
//
// Node ids are the positions in the node list. The result is validated.
func ParseYAML(r io.Reader) (*Topology, error) {
	var y yamlTopology

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&y); err != nil {
		return nil, configErrorf(0, "%v", err)
	}

	t := &Topology{}

	for i, kind := range y.Nodes {
		n := Node{ID: i}

		switch strings.ToLower(kind) {
		case "host", "h":
			n.Kind = Host
		case "switch", "s":
			n.Kind = Switch
		default:
			return nil, configErrorf(0, "node %d: unknown kind %q", i, kind)
		}

		t.Nodes = append(t.Nodes, n)
	}

	for i, yl := range y.Links {
		switch {
		case yl.Direct != nil && yl.Bridge == nil:
			if len(yl.Direct) != 2 {
				return nil, configErrorf(0, "link %d: direct needs two ids", i)
			}

			t.Links = append(t.Links, Link{
				Kind:  Direct,
				Node0: yl.Direct[0],
				Node1: yl.Direct[1],
			})
		case yl.Bridge != nil && yl.Direct == nil:
			b := yl.Bridge
			t.Links = append(t.Links, Link{
				Kind:         Bridged,
				Node0:        b.Node,
				Node1:        b.Node + MaxHosts,
				LocalDomain:  b.LocalDomain,
				ListenPort:   strconv.Itoa(b.ListenPort),
				RemoteDomain: b.RemoteDomain,
				RemotePort:   strconv.Itoa(b.RemotePort),
			})
		default:
			return nil, configErrorf(0,
				"link %d: exactly one of direct or bridge is required", i)
		}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// LoadFile reads a topology file. Files ending in .yaml or .yml are parsed as
// YAML, anything else as text.
func LoadFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return Parse(f)
	}
}
