// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Frame type tags. The set is closed: decode rejects anything else.
const (
	TypeRequest = "request"
	TypeControl = "control"
	TypeStatus  = "status"
	TypeOutput  = "output"
	TypeResult  = "result"
)

// Message is one decoded frame payload. The concrete types are
// *Request, *Control, *Status, *Output, and *Result.
type Message interface {
	frameType() string
	validate() error
}

// Mode selects what a comm-socket request asks for.
type Mode string

const (
	// ModeRun asks the daemon to execute the action and relay its
	// output and exit status.
	ModeRun Mode = "run"

	// ModeCheck asks only for the authorization decision. A check is
	// guaranteed side-effect-free: the daemon never spawns a process
	// for it.
	ModeCheck Mode = "check"
)

// Request is the single client→daemon message on a comm socket.
type Request struct {
	Mode   Mode   `cbor:"mode"`
	Action string `cbor:"action"`
}

func (*Request) frameType() string { return TypeRequest }

func (r *Request) validate() error {
	if r.Mode != ModeRun && r.Mode != ModeCheck {
		return fmt.Errorf("invalid mode %q", r.Mode)
	}
	if r.Action == "" {
		return fmt.Errorf("missing action name")
	}
	return nil
}

// Op selects what a control-socket request asks for.
type Op string

const (
	// OpCreate asks the daemon to open a comm socket for a uid.
	OpCreate Op = "create"

	// OpDestroy asks the daemon to remove a uid's comm socket.
	OpDestroy Op = "destroy"
)

// Control is the single client→daemon message on the control socket.
// TargetUID is the uid whose comm socket is created or destroyed; it
// names the socket's owner, never the requester (the control socket
// itself is restricted to the administrative principal).
type Control struct {
	Op        Op     `cbor:"op"`
	TargetUID uint32 `cbor:"target_uid"`
}

func (*Control) frameType() string { return TypeControl }

func (c *Control) validate() error {
	if c.Op != OpCreate && c.Op != OpDestroy {
		return fmt.Errorf("invalid op %q", c.Op)
	}
	return nil
}

// StatusCode is the daemon's verdict on a request.
type StatusCode string

const (
	// StatusOK acknowledges a successful (or no-op) control request.
	StatusOK StatusCode = "ok"

	// StatusPermitted reports that the caller is authorized for the
	// requested action. In run mode, output and result frames follow.
	StatusPermitted StatusCode = "permitted"

	// StatusDenied reports an authorization failure. Deliberately
	// non-specific: it covers unknown actions as well as known-but-
	// forbidden ones, so callers cannot probe the action namespace.
	StatusDenied StatusCode = "denied"

	// StatusProtocolError reports a malformed, oversized, or
	// out-of-sequence request. The session is closed without recovery.
	StatusProtocolError StatusCode = "protocol-error"

	// StatusNotEligible reports that a control create was refused
	// because the target uid cannot hold a comm socket.
	StatusNotEligible StatusCode = "not-eligible"

	// StatusExecutionFailure reports that the action could not be
	// spawned or terminated abnormally. Never carries a fabricated
	// exit code.
	StatusExecutionFailure StatusCode = "execution-failure"
)

var statusCodes = map[StatusCode]bool{
	StatusOK:               true,
	StatusPermitted:        true,
	StatusDenied:           true,
	StatusProtocolError:    true,
	StatusNotEligible:      true,
	StatusExecutionFailure: true,
}

// Status is a daemon→client verdict frame.
type Status struct {
	Code StatusCode `cbor:"code"`
}

func (*Status) frameType() string { return TypeStatus }

func (s *Status) validate() error {
	if !statusCodes[s.Code] {
		return fmt.Errorf("invalid status code %q", s.Code)
	}
	return nil
}

// StreamTag identifies which child stream an output chunk came from.
type StreamTag string

const (
	StreamStdout StreamTag = "stdout"
	StreamStderr StreamTag = "stderr"
)

// Output is one chunk of the running action's output, forwarded as it
// becomes available rather than buffered until exit.
type Output struct {
	Stream StreamTag `cbor:"stream"`
	Data   []byte    `cbor:"data"`
}

func (*Output) frameType() string { return TypeOutput }

func (o *Output) validate() error {
	if o.Stream != StreamStdout && o.Stream != StreamStderr {
		return fmt.Errorf("invalid stream tag %q", o.Stream)
	}
	return nil
}

// Result is the terminal frame of a run: the action's real exit
// status. Abnormal termination is reported as a Status frame with
// StatusExecutionFailure instead, never as a Result.
type Result struct {
	ExitCode int `cbor:"exit_code"`
}

func (*Result) frameType() string { return TypeResult }

func (r *Result) validate() error {
	if r.ExitCode < 0 || r.ExitCode > 255 {
		return fmt.Errorf("exit code %d out of range", r.ExitCode)
	}
	return nil
}
