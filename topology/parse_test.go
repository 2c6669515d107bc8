package topology

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const starText = `
# two hosts around a switch, one bridge out
3
H 0
H 1
S 2
3
P 0 2
P 1 2
S 2 9000 peer.example 9001
`

func expectConfigError(err error) *ConfigError {
	var cerr *ConfigError
	ExpectWithOffset(1, errors.As(err, &cerr)).To(BeTrue(), "%v", err)

	return cerr
}

var _ = Describe("Parse", func() {
	It("should read nodes and links", func() {
		t, err := Parse(strings.NewReader(starText))
		Expect(err).NotTo(HaveOccurred())

		Expect(t.Nodes).To(Equal([]Node{
			{ID: 0, Kind: Host}, {ID: 1, Kind: Host}, {ID: 2, Kind: Switch},
		}))
		Expect(t.Links).To(HaveLen(3))
		Expect(t.Links[0]).To(Equal(Link{Kind: Direct, Node0: 0, Node1: 2}))
		Expect(t.Links[2]).To(Equal(Link{
			Kind:         Bridged,
			Node0:        2,
			Node1:        2 + MaxHosts,
			ListenPort:   "9000",
			RemoteDomain: "peer.example",
			RemotePort:   "9001",
		}))
		Expect(t.Hosts()).To(Equal([]int{0, 1}))
	})

	It("should accept a local domain on bridged links", func() {
		t, err := Parse(strings.NewReader(
			"1\nH 0\n1\nS 0 127.0.0.1 9000 127.0.0.1 9001\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Links[0].ListenAddr()).To(Equal("127.0.0.1:9000"))
		Expect(t.Links[0].RemoteAddr()).To(Equal("127.0.0.1:9001"))
	})

	DescribeTable("should reject bad input",
		func(text string, line int) {
			_, err := Parse(strings.NewReader(text))
			cerr := expectConfigError(err)
			Expect(cerr.Line).To(Equal(line))
		},
		Entry("empty", "", 0),
		Entry("bad count", "x\n", 1),
		Entry("bad kind", "1\nX 0\n", 2),
		Entry("id out of order", "2\nH 1\nH 0\n", 2),
		Entry("truncated nodes", "2\nH 0\n", 2),
		Entry("bad link", "2\nH 0\nH 1\n1\nQ 0 1\n", 5),
		Entry("no links", "1\nH 0\n0\n", 0),
		Entry("unknown endpoint", "2\nH 0\nH 1\n1\nP 0 5\n", 0),
		Entry("self link", "2\nH 0\nH 1\n1\nP 1 1\n", 0),
		Entry("bad listen port", "1\nH 0\n1\nS 0 http peer 9001\n", 0),
	)
})

var _ = Describe("ParseYAML", func() {
	It("should read the same data as the text form", func() {
		t, err := ParseYAML(strings.NewReader(`
nodes: [host, host, switch]
links:
  - direct: [0, 2]
  - direct: [1, 2]
  - bridge:
      node: 2
      listen_port: 9000
      remote_domain: peer.example
      remote_port: 9001
`))
		Expect(err).NotTo(HaveOccurred())

		want, err := Parse(strings.NewReader(starText))
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(want))
	})

	It("should reject unknown fields", func() {
		_, err := ParseYAML(strings.NewReader("nodes: [host]\ncolor: red\n"))
		expectConfigError(err)
	})

	It("should reject a link with both forms", func() {
		_, err := ParseYAML(strings.NewReader(`
nodes: [host, host]
links:
  - direct: [0, 1]
    bridge: {node: 0, listen_port: 1, remote_domain: x, remote_port: 2}
`))
		expectConfigError(err)
	})
})

var _ = Describe("LoadFile", func() {
	It("should pick the parser by extension", func() {
		dir := GinkgoT().TempDir()

		text := filepath.Join(dir, "net.topo")
		Expect(os.WriteFile(text, []byte(starText), 0o600)).To(Succeed())

		yml := filepath.Join(dir, "net.yaml")
		Expect(os.WriteFile(yml, []byte(
			"nodes: [h, h]\nlinks:\n  - direct: [0, 1]\n"), 0o600)).To(Succeed())

		t, err := LoadFile(text)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Nodes).To(HaveLen(3))

		t, err = LoadFile(yml)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Links).To(HaveLen(1))
	})

	It("should fail on a missing file", func() {
		_, err := LoadFile(filepath.Join(GinkgoT().TempDir(), "none"))
		Expect(err).To(MatchError(os.ErrNotExist))
	})
})
