package host

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sarchlab/netemu/node"
	"github.com/sarchlab/netemu/packet"
)

var (
	// ErrNoDirectory means the host has no working directory yet.
	ErrNoDirectory = errors.New("no working directory")

	// ErrBadFileName means a file name is not a plain base name.
	ErrBadFileName = errors.New("bad file name")
)

// FileIOError reports a file that could not be read or written during a
// transfer.
type FileIOError struct {
	Op   string
	Name string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *FileIOError) Unwrap() error {
	return e.Err
}

// path resolves a file name inside the working directory.
func (c *Comp) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || len(name) > packet.PayloadMax {
		return "", fmt.Errorf("%w: %q", ErrBadFileName, name)
	}

	if c.dir == "" {
		return "", ErrNoDirectory
	}

	return filepath.Join(c.dir, name), nil
}

// inboundTransfer is a file being received from one peer.
type inboundTransfer struct {
	name   string
	file   *os.File
	size   int64
	failed bool
}

func (c *Comp) receiveStart(src int, name string) {
	if t, ok := c.inbound[src]; ok {
		c.abortInbound(src, t)
		c.report("Transfer of %s from host %d interrupted by a new one",
			t.name, src)
	}

	t := &inboundTransfer{name: name}
	c.inbound[src] = t

	path, err := c.path(name)
	if err == nil {
		t.file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	}

	if err != nil {
		c.failInbound(src, t, &FileIOError{Op: "create", Name: name, Err: err})
	}
}

func (c *Comp) receiveChunk(src int, data []byte, last bool) {
	t, ok := c.inbound[src]
	if !ok {
		c.counters.transferFails++
		c.report("Protocol error: file chunk from host %d without a start", src)

		return
	}

	if last {
		delete(c.inbound, src)
	}

	if t.failed {
		return
	}

	if _, err := t.file.Write(data); err != nil {
		c.failInbound(src, t, &FileIOError{Op: "write", Name: t.name, Err: err})
		return
	}

	t.size += int64(len(data))

	if !last {
		return
	}

	if err := t.file.Close(); err != nil {
		c.failInbound(src, t, &FileIOError{Op: "close", Name: t.name, Err: err})
		return
	}

	c.counters.filesReceived++
	c.report("Received %s (%s) from host %d",
		t.name, humanize.Bytes(uint64(t.size)), src)
}

// failInbound aborts a transfer. The entry stays until the end chunk so the
// remaining chunks are ignored quietly.
func (c *Comp) failInbound(src int, t *inboundTransfer, err error) {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}

	t.failed = true
	c.counters.transferFails++
	c.report("Transfer from host %d failed: %v", src, err)
}

func (c *Comp) abortInbound(src int, t *inboundTransfer) {
	if t.file != nil {
		t.file.Close()
	}

	delete(c.inbound, src)
}

// outboundTransfer is a file being sent to one peer.
type outboundTransfer struct {
	file   *os.File
	reader *bufio.Reader
	size   int64
	last   []byte
}

// openOutbound opens a file for sending and emits the start packet.
func (c *Comp) openOutbound(dst int, name, op string) (*outboundTransfer, error) {
	to, err := addr(dst)
	if err != nil {
		return nil, err
	}

	path, err := c.path(name)
	if err != nil {
		return nil, &FileIOError{Op: op, Name: name, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileIOError{Op: op, Name: name, Err: err}
	}

	c.emit(&packet.Packet{
		Src:     c.self(),
		Dst:     to,
		Type:    packet.TypeFileUploadStart,
		Payload: []byte(name),
	})

	return &outboundTransfer{file: f, reader: bufio.NewReader(f)}, nil
}

// nextChunk reads the next chunk and tells whether it is the final one.
func (c *Comp) nextChunk(t *outboundTransfer) ([]byte, bool, error) {
	buf := make([]byte, c.chunkSize)

	n, err := io.ReadFull(t.reader, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		t.size += int64(n)
		return buf[:n], true, nil
	case err != nil:
		return nil, false, err
	}

	t.size += int64(n)

	if _, err := t.reader.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return buf, true, nil
		}

		return nil, false, err
	}

	return buf, false, nil
}

func (c *Comp) emitChunk(dst int, typ packet.Type, data []byte) {
	to, err := addr(dst)
	if err != nil {
		log.Errorf("%s: dropping %s chunk: %v", c.Name(), typ, err)
		return
	}

	c.emit(&packet.Packet{
		Src:     c.self(),
		Dst:     to,
		Type:    typ,
		Payload: data,
	})
}

func (c *Comp) uploadBegin(j *node.Job) {
	t, err := c.openOutbound(j.Dst, j.FileName, "upload")
	if err != nil {
		c.counters.transferFails++
		c.report("Upload to host %d failed: %v", j.Dst, err)

		return
	}

	j.Kind = node.JobUploadContinue
	j.State = t
	c.Enqueue(j)
}

// uploadContinue sends one chunk per run. The final chunk is left to
// uploadEnd.
func (c *Comp) uploadContinue(j *node.Job) {
	t := j.State.(*outboundTransfer)

	chunk, last, err := c.nextChunk(t)
	if err != nil {
		t.file.Close()
		c.counters.transferFails++
		c.report("Upload of %s to host %d failed: %v", j.FileName, j.Dst,
			&FileIOError{Op: "read", Name: j.FileName, Err: err})

		return
	}

	if last {
		t.last = chunk
		j.Kind = node.JobUploadEnd
		c.Enqueue(j)

		return
	}

	c.emitChunk(j.Dst, packet.TypeFileUploadContinue, chunk)
	c.Enqueue(j)
}

func (c *Comp) uploadEnd(j *node.Job) {
	t := j.State.(*outboundTransfer)

	c.emitChunk(j.Dst, packet.TypeFileUploadEnd, t.last)
	t.file.Close()

	c.counters.filesSent++
	c.report("Uploaded %s (%s) to host %d",
		j.FileName, humanize.Bytes(uint64(t.size)), j.Dst)
}

func (c *Comp) requestDownload(src int, name string) {
	from, err := addr(src)
	if err == nil {
		_, err = c.path(name)
	}

	if err != nil {
		c.counters.transferFails++
		c.report("Download of %s from host %d failed: %v", name, src, err)

		return
	}

	c.Enqueue(&node.Job{
		Kind: node.JobSend,
		Packet: &packet.Packet{
			Src:     c.self(),
			Dst:     from,
			Type:    packet.TypeFileDownloadRequest,
			Payload: []byte(name),
		},
		InPort:  node.NoPort,
		OutPort: node.AllPorts,
	})
}

func (c *Comp) downloadBegin(j *node.Job) {
	t, err := c.openOutbound(j.Dst, j.FileName, "serve")
	if err != nil {
		c.counters.transferFails++
		c.report("Download request from host %d failed: %v", j.Dst, err)

		return
	}

	j.Kind = node.JobDownloadContinue
	j.State = t
	c.Enqueue(j)
}

// downloadContinue streams one chunk per run back to the requester.
func (c *Comp) downloadContinue(j *node.Job) {
	t := j.State.(*outboundTransfer)

	chunk, last, err := c.nextChunk(t)
	if err != nil {
		t.file.Close()
		c.counters.transferFails++
		c.report("Serving %s to host %d failed: %v", j.FileName, j.Dst,
			&FileIOError{Op: "read", Name: j.FileName, Err: err})

		return
	}

	if !last {
		c.emitChunk(j.Dst, packet.TypeFileUploadContinue, chunk)
		c.Enqueue(j)

		return
	}

	c.emitChunk(j.Dst, packet.TypeFileUploadEnd, chunk)
	t.file.Close()

	c.counters.filesSent++
	c.report("Sent %s (%s) to host %d",
		j.FileName, humanize.Bytes(uint64(t.size)), j.Dst)
}
