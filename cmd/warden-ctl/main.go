// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// warden-ctl is the administrative client: it asks the daemon to
// create or destroy a caller's comm socket. Meant to be invoked from
// session hooks (PAM, logind) so channels track login sessions, but
// works equally from a root shell.
//
// Exit codes: 0 on success (including no-op create/destroy), 2 when
// the daemon refuses because the target cannot hold a channel, 1 for
// everything else.
package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/lib/cli"
	"github.com/warden-foundation/warden/lib/identity"
	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/lib/wire"
)

func main() {
	var runDir string

	command := &cli.Command{
		Name:    "warden-ctl",
		Summary: "create or destroy warden comm channels",
		Description: "warden-ctl asks the warden daemon to open or close the\n" +
			"communication channel for one account. The account may be given\n" +
			"as a username or a numeric uid.",
		Usage: "warden-ctl <create|destroy> <user>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("warden-ctl", pflag.ContinueOnError)
			flags.StringVar(&runDir, "run-dir", registry.DefaultRunDir, "daemon runtime directory")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <create|destroy> <user>, got %d arguments", len(args))
			}

			var op wire.Op
			switch args[0] {
			case "create":
				op = wire.OpCreate
			case "destroy":
				op = wire.OpDestroy
			default:
				return fmt.Errorf("unknown operation %q (want create or destroy)", args[0])
			}

			uid, err := resolveTarget(args[1], identity.OSDatabase{})
			if err != nil {
				return &cli.ExitError{Code: 2, Message: err.Error()}
			}

			socketPath := registry.ControlSocket(runDir)
			conn, err := net.Dial("unix", socketPath)
			if err != nil {
				return &cli.ExitError{Code: 1, Message: fmt.Sprintf(
					"cannot reach the warden daemon at %s: %v", socketPath, err)}
			}
			defer conn.Close()

			return control(conn, op, uid, os.Stdout)
		},
	}
	cli.Main(command)
}

// resolveTarget turns a username or numeric uid into a uid. A numeric
// argument is passed through untouched: eligibility is the daemon's
// call, and the daemon resolves against its own view of the user
// database.
func resolveTarget(target string, users identity.Database) (uint32, error) {
	if uid, err := strconv.ParseUint(target, 10, 32); err == nil {
		return uint32(uid), nil
	}
	account, err := users.LookupUsername(target)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownUser) {
			return 0, fmt.Errorf("no such user %q", target)
		}
		return 0, fmt.Errorf("resolving %q: %v", target, err)
	}
	return account.UID, nil
}

// control performs one administrative request and maps the daemon's
// verdict to an exit code.
func control(conn net.Conn, op wire.Op, uid uint32, stdout io.Writer) error {
	if err := wire.WriteMessage(conn, &wire.Control{Op: op, TargetUID: uid}); err != nil {
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("sending request: %v", err)}
	}

	msg, err := wire.ReadMessage(conn, wire.MaxFrame)
	if errors.Is(err, io.EOF) {
		return &cli.ExitError{Code: 1, Message: "the daemon closed the connection without answering"}
	}
	if err != nil {
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("reading verdict: %v", err)}
	}
	status, ok := msg.(*wire.Status)
	if !ok {
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("expected a status frame, got %T", msg)}
	}

	switch status.Code {
	case wire.StatusOK:
		verb := "created"
		if op == wire.OpDestroy {
			verb = "destroyed"
		}
		fmt.Fprintf(stdout, "channel %s for uid %d\n", verb, uid)
		return nil
	case wire.StatusNotEligible:
		return &cli.ExitError{Code: 2, Message: fmt.Sprintf("uid %d is not eligible for a channel", uid)}
	case wire.StatusProtocolError:
		return &cli.ExitError{Code: 1, Message: "the daemon rejected the request as malformed"}
	default:
		return &cli.ExitError{Code: 1, Message: fmt.Sprintf("unexpected status %q", status.Code)}
	}
}
