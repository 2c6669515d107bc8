package datarecording

import (
	"os"
	"strings"
	"time"
)

// RunInfoTable is the table that describes the recorded run.
const RunInfoTable = "run_info"

// RunInfo is one property of the recorded run.
type RunInfo struct {
	Property string
	Value    string
}

// RunRecorder records what was run and when.
type RunRecorder struct {
	recorder DataRecorder
	entries  []RunInfo
}

// NewRunRecorder creates the run info table in the recorder.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	recorder.CreateTable(RunInfoTable, RunInfo{})

	return &RunRecorder{recorder: recorder}
}

// Start notes the start time, the command line and any extra properties.
func (e *RunRecorder) Start(props ...RunInfo) {
	e.entries = append(e.entries,
		RunInfo{"Start Time", now()},
		RunInfo{"Command", strings.Join(os.Args, " ")},
	)

	if wd, err := os.Getwd(); err == nil {
		e.entries = append(e.entries, RunInfo{"Working Directory", wd})
	}

	e.entries = append(e.entries, props...)
}

// End writes the collected properties along with the end time.
func (e *RunRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(RunInfoTable, entry)
	}

	e.recorder.InsertData(RunInfoTable, RunInfo{"End Time", now()})
	e.entries = nil

	e.recorder.Flush()
}

func now() string {
	return time.Now().Format("2006-01-02 15:04:05.000000000")
}
