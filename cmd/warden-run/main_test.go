// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/warden-foundation/warden/lib/cli"
	"github.com/warden-foundation/warden/lib/testutil"
	"github.com/warden-foundation/warden/lib/wire"
)

// fakeDaemon serves one scripted comm session on the far end of a
// pipe: it reads the single request, then plays back the given frames
// and closes.
func fakeDaemon(t *testing.T, frames ...wire.Message) (client net.Conn, requests <-chan *wire.Request) {
	t.Helper()
	client, server := net.Pipe()
	received := make(chan *wire.Request, 1)

	go func() {
		defer server.Close()
		msg, err := wire.ReadMessage(server, wire.MaxRequestFrame)
		if err != nil {
			return
		}
		if request, ok := msg.(*wire.Request); ok {
			received <- request
		}
		for _, frame := range frames {
			if err := wire.WriteMessage(server, frame); err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() { client.Close() })
	return client, received
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exit *cli.ExitError
	if !isExitError(err, &exit) {
		t.Fatalf("error is %T, want *cli.ExitError: %v", err, err)
	}
	return exit.Code
}

func isExitError(err error, target **cli.ExitError) bool {
	exit, ok := err.(*cli.ExitError)
	if ok {
		*target = exit
	}
	return ok
}

func TestRunRelaysOutputAndExitCode(t *testing.T) {
	conn, requests := fakeDaemon(t,
		&wire.Status{Code: wire.StatusPermitted},
		&wire.Output{Stream: wire.StreamStdout, Data: []byte("out\n")},
		&wire.Output{Stream: wire.StreamStderr, Data: []byte("err\n")},
		&wire.Result{ExitCode: 4},
	)

	var stdout, stderr bytes.Buffer
	err := run(conn, "backup", false, &stdout, &stderr)

	if code := exitCode(t, err); code != 4 {
		t.Errorf("exit code = %d, want 4", code)
	}
	if err != nil && err.Error() != "" {
		t.Errorf("action exit code should be silent, got message %q", err.Error())
	}
	if stdout.String() != "out\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "out\n")
	}
	if stderr.String() != "err\n" {
		t.Errorf("stderr = %q, want %q", stderr.String(), "err\n")
	}

	request := testutil.RequireReceive(t, requests, 5*time.Second, "waiting for request")
	if request.Mode != wire.ModeRun || request.Action != "backup" {
		t.Errorf("request = %+v, want run backup", request)
	}
}

func TestRunZeroExit(t *testing.T) {
	conn, _ := fakeDaemon(t,
		&wire.Status{Code: wire.StatusPermitted},
		&wire.Result{ExitCode: 0},
	)

	if err := run(conn, "backup", false, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunDenied(t *testing.T) {
	conn, _ := fakeDaemon(t, &wire.Status{Code: wire.StatusDenied})

	err := run(conn, "backup", false, &bytes.Buffer{}, &bytes.Buffer{})
	if code := exitCode(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if err == nil || err.Error() == "" {
		t.Error("denial should carry a message")
	}
}

func TestRunExecutionFailure(t *testing.T) {
	conn, _ := fakeDaemon(t,
		&wire.Status{Code: wire.StatusPermitted},
		&wire.Status{Code: wire.StatusExecutionFailure},
	)

	err := run(conn, "backup", false, &bytes.Buffer{}, &bytes.Buffer{})
	if code := exitCode(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRunTruncatedSession(t *testing.T) {
	// Permitted, then the daemon vanishes before the result.
	conn, _ := fakeDaemon(t, &wire.Status{Code: wire.StatusPermitted})

	err := run(conn, "backup", false, &bytes.Buffer{}, &bytes.Buffer{})
	if code := exitCode(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestCheckDoesNotReadPastVerdict(t *testing.T) {
	conn, requests := fakeDaemon(t, &wire.Status{Code: wire.StatusPermitted})

	var stdout bytes.Buffer
	if err := run(conn, "backup", true, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run --check: %v", err)
	}
	if stdout.Len() == 0 {
		t.Error("check should report the verdict on stdout")
	}

	request := testutil.RequireReceive(t, requests, 5*time.Second, "waiting for request")
	if request.Mode != wire.ModeCheck {
		t.Errorf("request mode = %q, want check", request.Mode)
	}
}

func TestCheckDenied(t *testing.T) {
	conn, _ := fakeDaemon(t, &wire.Status{Code: wire.StatusDenied})

	err := run(conn, "backup", true, &bytes.Buffer{}, &bytes.Buffer{})
	if code := exitCode(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
