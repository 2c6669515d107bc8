// Package manager implements the control protocol between the manager and
// the hosts. Commands and replies are newline terminated ASCII lines carried
// over a dedicated channel pair per host.
package manager

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/netemu/packet"
)

// ErrBadCommand is returned for lines that are not valid commands.
var ErrBadCommand = errors.New("manager: bad command")

// Op is the first letter of a command line.
type Op byte

// Command operations.
const (
	OpState    Op = 's'
	OpSetDir   Op = 'm'
	OpPing     Op = 'p'
	OpUpload   Op = 'u'
	OpDownload Op = 'd'
)

func (o Op) String() string {
	switch o {
	case OpState:
		return "state"
	case OpSetDir:
		return "set-dir"
	case OpPing:
		return "ping"
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	default:
		return fmt.Sprintf("Op(%q)", byte(o))
	}
}

// HasReply tells whether the host answers a command of this operation.
func (o Op) HasReply() bool {
	return o == OpState || o == OpPing
}

// A Command is one request from the manager to a host.
type Command struct {
	Op Op

	// Host is the target host of ping, upload and download.
	Host int

	// Arg is the directory of a set-dir command or the file name of a
	// transfer.
	Arg string
}

// ParseCommand parses one command line without its line terminator.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields[0]) != 1 {
		return Command{}, fmt.Errorf("%w: %q", ErrBadCommand, line)
	}

	cmd := Command{Op: Op(fields[0][0])}
	args := fields[1:]

	switch cmd.Op {
	case OpState:
		if len(args) != 0 {
			return Command{}, fmt.Errorf("%w: %q", ErrBadCommand, line)
		}
	case OpSetDir:
		rest := strings.TrimSpace(strings.TrimSpace(line)[1:])
		if rest == "" {
			return Command{}, fmt.Errorf("%w: missing directory", ErrBadCommand)
		}

		cmd.Arg = rest
	case OpPing:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%w: %q", ErrBadCommand, line)
		}

		return withHost(cmd, args[0])
	case OpUpload, OpDownload:
		if len(args) != 2 {
			return Command{}, fmt.Errorf("%w: %q", ErrBadCommand, line)
		}

		cmd.Arg = args[1]

		return withHost(cmd, args[0])
	default:
		return Command{}, fmt.Errorf("%w: unknown operation %q", ErrBadCommand,
			fields[0])
	}

	return cmd, nil
}

func withHost(cmd Command, s string) (Command, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 || id >= packet.BroadcastID {
		return Command{}, fmt.Errorf("%w: bad host id %q", ErrBadCommand, s)
	}

	cmd.Host = id

	return cmd, nil
}

// String returns the wire form of the command.
func (c Command) String() string {
	switch c.Op {
	case OpState:
		return "s"
	case OpSetDir:
		return "m " + c.Arg
	case OpPing:
		return fmt.Sprintf("p %d", c.Host)
	default:
		return fmt.Sprintf("%c %d %s", byte(c.Op), c.Host, c.Arg)
	}
}

// NoDir is how an unset working directory is reported.
const NoDir = "None"

const reportSep = " | "

// State is a host's answer to a state query.
type State struct {
	Dir    string
	HostID int

	// Reports are the events the host logged since the previous query.
	Reports []string
}

// String returns the wire form of the state reply.
func (s State) String() string {
	dir := s.Dir
	if dir == "" {
		dir = NoDir
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %d", dir, s.HostID)

	for _, r := range s.Reports {
		b.WriteString(reportSep)
		b.WriteString(SanitizeReport(r))
	}

	return b.String()
}

// ParseState parses a state reply.
func ParseState(line string) (State, error) {
	parts := strings.Split(line, reportSep)

	head := strings.TrimSpace(parts[0])
	sp := strings.LastIndexByte(head, ' ')
	if sp < 0 {
		return State{}, fmt.Errorf("%w: bad state reply %q", ErrBadCommand, line)
	}

	id, err := strconv.Atoi(head[sp+1:])
	if err != nil {
		return State{}, fmt.Errorf("%w: bad state reply %q", ErrBadCommand, line)
	}

	s := State{Dir: head[:sp], HostID: id}
	if s.Dir == NoDir {
		s.Dir = ""
	}

	if len(parts) > 1 {
		s.Reports = parts[1:]
	}

	return s, nil
}

// SanitizeReport makes a report safe to embed in a state reply.
func SanitizeReport(r string) string {
	r = strings.ReplaceAll(r, "\n", " ")
	return strings.ReplaceAll(r, "|", "/")
}
