package node

import (
	"fmt"

	"github.com/sarchlab/netemu/packet"
)

// Kind tells what a job does.
type Kind int

// Job kinds.
const (
	JobDeliver Kind = iota
	JobSend
	JobPingSendRequest
	JobPingAwaitReply
	JobUploadBegin
	JobUploadContinue
	JobUploadEnd
	JobDownloadBegin
	JobDownloadContinue
)

var kindNames = [...]string{
	JobDeliver:          "deliver",
	JobSend:             "send",
	JobPingSendRequest:  "ping-send-request",
	JobPingAwaitReply:   "ping-await-reply",
	JobUploadBegin:      "upload-begin",
	JobUploadContinue:   "upload-continue",
	JobUploadEnd:        "upload-end",
	JobDownloadBegin:    "download-begin",
	JobDownloadContinue: "download-continue",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// AllPorts as the OutPort of a send job floods the packet on every port
// except InPort.
const AllPorts = -1

// NoPort marks a job that did not come from a port.
const NoPort = -1

// A Job is one unit of work executed on a tick.
type Job struct {
	Kind   Kind
	Packet *packet.Packet

	// InPort is the port the packet arrived on.
	InPort int

	// OutPort is the egress port of a send job, or AllPorts.
	OutPort int

	// Dst is the peer host of ping and transfer jobs.
	Dst int

	// Timer is the remaining tick budget of an await job.
	Timer int

	FileName string

	// State carries kind-specific data between the steps of a transfer.
	State any
}

func (j *Job) String() string {
	if j.Packet != nil {
		return fmt.Sprintf("%s[%s]", j.Kind, j.Packet)
	}

	return fmt.Sprintf("%s[dst=%d]", j.Kind, j.Dst)
}
