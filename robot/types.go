package robot

import (
	"strconv"
	"strings"
	"time"
)

// ConnState is the connection lifecycle state of the robot link.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Well-known controller responses.
const (
	RespAck        = "ack"
	RespTaskDone   = "taskdone"
	RespTaskFailed = "taskfailed"

	statusPrefix = "status"
	errorPrefix  = "error"
)

// ResultKind tags a CommandResult.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultTimeout
	ResultConnectionError
	ResultTaskFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultTimeout:
		return "timeout"
	case ResultConnectionError:
		return "connection_error"
	case ResultTaskFailed:
		return "task_failed"
	}
	return "unknown"
}

// CommandResult is the single outcome value returned for every dispatched
// command. Exactly one of the detail fields is meaningful per kind:
// Response for Success, WaitedFor for Timeout, Reason for the error kinds.
type CommandResult struct {
	Kind      ResultKind `json:"kind"`
	Command   string     `json:"command"`
	Response  string     `json:"response,omitempty"`
	WaitedFor string     `json:"waited_for,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// OK reports whether the command fully succeeded.
func (r CommandResult) OK() bool {
	return r.Kind == ResultSuccess
}

func successResult(command, response string) CommandResult {
	return CommandResult{Kind: ResultSuccess, Command: command, Response: response}
}

func timeoutResult(command, waitedFor string) CommandResult {
	return CommandResult{Kind: ResultTimeout, Command: command, WaitedFor: waitedFor}
}

func connErrorResult(command, reason string) CommandResult {
	return CommandResult{Kind: ResultConnectionError, Command: command, Reason: reason}
}

func taskFailedResult(command, reason string) CommandResult {
	return CommandResult{Kind: ResultTaskFailed, Command: command, Reason: reason}
}

// commandSpec is the fixed expectation policy for a command class.
type commandSpec struct {
	steps   []string // responses that must be observed in order
	canFail bool     // taskfailed may replace the final taskdone
}

// specFor maps a command name to its expectation sequence. Unknown commands
// and status queries are fire-and-forget.
func specFor(name string) commandSpec {
	switch name {
	case "move", "jump", "insert", "queue":
		return commandSpec{steps: []string{RespAck, RespTaskDone}, canFail: true}
	case "echo":
		return commandSpec{steps: []string{RespAck, RespTaskDone}}
	case "stop":
		return commandSpec{steps: []string{RespAck}}
	default:
		return commandSpec{}
	}
}

// Status is an asynchronous pose/queue push from the controller:
// "status <state#>, <x>, <y>, <z>, <u>, <queueIndex>, <queueSize>".
type Status struct {
	State      int       `json:"state"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	U          float64   `json:"u"`
	QueueIndex int       `json:"queue_index"`
	QueueSize  int       `json:"queue_size"`
	At         time.Time `json:"at"`
}

// ParseStatus decodes a status push line. Returns false for anything that is
// not a well-formed status line.
func ParseStatus(line string) (Status, bool) {
	rest, ok := strings.CutPrefix(line, statusPrefix)
	if !ok {
		return Status{}, false
	}
	fields := strings.Split(rest, ",")
	if len(fields) != 7 {
		return Status{}, false
	}
	var nums [7]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Status{}, false
		}
		nums[i] = v
	}
	return Status{
		State:      int(nums[0]),
		X:          nums[1],
		Y:          nums[2],
		Z:          nums[3],
		U:          nums[4],
		QueueIndex: int(nums[5]),
		QueueSize:  int(nums[6]),
		At:         time.Now(),
	}, true
}
