// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// warden-run asks the broker to execute a named action. The caller's
// identity is taken from the connection itself, so there is nothing to
// authenticate here: connect, name the action, relay the output, and
// exit with the action's real exit status.
package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/lib/cli"
	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/lib/wire"
)

func main() {
	var check bool
	var socketPath string

	command := &cli.Command{
		Name:    "warden-run",
		Summary: "run a broker-managed action",
		Description: "warden-run asks the warden daemon to execute a named action.\n" +
			"The action's stdout and stderr are relayed, and warden-run exits\n" +
			"with the action's own exit code. With --check, only the\n" +
			"authorization decision is requested; nothing is executed.",
		Usage: "warden-run [--check] <action>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("warden-run", pflag.ContinueOnError)
			flags.BoolVarP(&check, "check", "c", false, "only check authorization, do not execute")
			flags.StringVar(&socketPath, "socket", "", "comm socket path (default: this uid's socket under /run/warden)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one action name, got %d arguments", len(args))
			}
			if socketPath == "" {
				socketPath = registry.CommSocket(registry.DefaultRunDir, uint32(os.Getuid()))
			}

			conn, err := net.Dial("unix", socketPath)
			if err != nil {
				return &cli.ExitError{Code: 1, Message: fmt.Sprintf(
					"cannot reach the warden daemon at %s: %v\n"+
						"(is the daemon running, and does this account have a channel?)", socketPath, err)}
			}
			defer conn.Close()

			return run(conn, args[0], check, os.Stdout, os.Stderr)
		},
	}
	cli.Main(command)
}

// run performs one request over an established connection, relaying
// output to stdout/stderr. The returned error is always a
// *cli.ExitError carrying the process exit code; nil means the action
// ran and exited zero.
func run(conn net.Conn, action string, check bool, stdout, stderr io.Writer) error {
	mode := wire.ModeRun
	if check {
		mode = wire.ModeCheck
	}
	if err := wire.WriteMessage(conn, &wire.Request{Mode: mode, Action: action}); err != nil {
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("sending request: %v", err)}
	}

	verdict, err := readStatus(conn)
	if err != nil {
		return err
	}
	switch verdict {
	case wire.StatusPermitted:
	case wire.StatusDenied:
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("denied: not authorized for action %q", action)}
	case wire.StatusProtocolError:
		return &cli.ExitError{Code: 1, Message: "the daemon rejected the request as malformed"}
	default:
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("unexpected status %q", verdict)}
	}

	if check {
		fmt.Fprintf(stdout, "permitted: %s\n", action)
		return nil
	}

	// Permitted run: relay output frames until the terminal frame.
	for {
		msg, err := wire.ReadMessage(conn, wire.MaxFrame)
		if errors.Is(err, io.EOF) {
			return &cli.ExitError{Code: 1, Message: "connection closed before the action finished"}
		}
		if err != nil {
			return &cli.ExitError{Code: 1, Message: fmt.Sprintf("reading from daemon: %v", err)}
		}

		switch frame := msg.(type) {
		case *wire.Output:
			target := stdout
			if frame.Stream == wire.StreamStderr {
				target = stderr
			}
			if _, err := target.Write(frame.Data); err != nil {
				return &cli.ExitError{Code: 1, Message: fmt.Sprintf("writing output: %v", err)}
			}
		case *wire.Result:
			if frame.ExitCode == 0 {
				return nil
			}
			// The action's own exit code, silently.
			return &cli.ExitError{Code: frame.ExitCode}
		case *wire.Status:
			if frame.Code == wire.StatusExecutionFailure {
				return &cli.ExitError{Code: 1, Message: fmt.Sprintf("action %q could not be executed", action)}
			}
			return &cli.ExitError{Code: 1, Message: fmt.Sprintf("unexpected status %q mid-run", frame.Code)}
		default:
			return &cli.ExitError{Code: 1, Message: fmt.Sprintf("unexpected frame type %T", msg)}
		}
	}
}

// readStatus reads the initial verdict frame.
func readStatus(conn net.Conn) (wire.StatusCode, error) {
	msg, err := wire.ReadMessage(conn, wire.MaxFrame)
	if errors.Is(err, io.EOF) {
		return "", &cli.ExitError{Code: 1, Message: "the daemon closed the connection without answering"}
	}
	if err != nil {
		return "", &cli.ExitError{Code: 1, Message: fmt.Sprintf("reading verdict: %v", err)}
	}
	status, ok := msg.(*wire.Status)
	if !ok {
		return "", &cli.ExitError{Code: 1, Message: fmt.Sprintf("expected a status frame, got %T", msg)}
	}
	return status.Code, nil
}
