package process

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of a managed process.
//
//	PENDING -> RUNNING -> COMPLETED | FAILED
//	           RUNNING -> KILLING -> KILLED
//
// Nothing leaves a terminal state.
type Status int

const (
	Pending Status = iota
	Running
	Completed
	Failed
	Killing
	Killed
)

var statusNames = map[Status]string{
	Pending:   "PENDING",
	Running:   "RUNNING",
	Completed: "COMPLETED",
	Failed:    "FAILED",
	Killing:   "KILLING",
	Killed:    "KILLED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Killed
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for st, n := range statusNames {
		if n == string(b) {
			*s = st
			return nil
		}
	}
	return errors.Errorf("unknown process status %q", b)
}

// Info describes one execution attempt of a task on a GPU.
type Info struct {
	ID         int       `json:"id"`
	TaskID     int       `json:"task_id"`
	GPUID      int       `json:"gpu_id"`
	Command    string    `json:"command"`
	Pid        int       `json:"pid"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time,omitempty"`
	Status     Status    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	StdoutPath string    `json:"stdout_path"`
	StderrPath string    `json:"stderr_path"`
}

// Event reports a status transition. Exactly one event with a terminal
// Status is published per process.
type Event struct {
	Process  Info
	Previous Status
}
