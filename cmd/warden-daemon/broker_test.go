// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/warden-foundation/warden/lib/identity"
	"github.com/warden-foundation/warden/lib/policy"
	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/lib/testutil"
	"github.com/warden-foundation/warden/lib/wire"
)

// staticResolver hands every connection the same identity, standing in
// for SO_PEERCRED in tests that exercise the session logic rather than
// the kernel.
type staticResolver struct {
	caller identity.Caller
	err    error
}

func (r staticResolver) Resolve(net.Conn) (identity.Caller, error) {
	return r.caller, r.err
}

// spyRunner records invocations instead of spawning anything.
type spyRunner struct {
	mu       sync.Mutex
	calls    []string
	output   string
	exitCode int
	err      error
}

func (r *spyRunner) Run(_ context.Context, action *policy.Action, sink OutputSink) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, action.Name)
	r.mu.Unlock()
	if r.output != "" {
		sink.Chunk(wire.StreamStdout, []byte(r.output))
	}
	return r.exitCode, r.err
}

func (r *spyRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// testIdentity is the account every broker test runs as: the current
// process uid, so socket chown succeeds without privilege.
func testIdentity() identity.Account {
	return identity.Account{
		UID:      uint32(os.Getuid()),
		GID:      uint32(os.Getgid()),
		Username: "tester",
		HomeDir:  "/",
	}
}

func writePolicy(t *testing.T, users *identity.FakeDatabase) *policy.Store {
	t.Helper()
	dir := t.TempDir()
	content := `{
		"actions": [
			{
				"name": "greet",
				"command": "echo hello",
				"user": "tester",
				"allowed_users": ["tester"]
			},
			{
				"name": "staff-only",
				"command": "true",
				"user": "tester",
				"allowed_groups": ["staff"]
			},
			{
				"name": "locked",
				"command": "true",
				"user": "tester"
			}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "actions.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing policy: %v", err)
	}
	store, err := policy.Load(dir, users)
	if err != nil {
		t.Fatalf("loading policy: %v", err)
	}
	return store
}

func newTestBroker(t *testing.T, resolver identity.Resolver, runner actionRunner) (*Broker, string) {
	t.Helper()
	runDir := testutil.SocketDir(t)
	if err := os.MkdirAll(registry.CommDir(runDir), 0o755); err != nil {
		t.Fatalf("creating comm dir: %v", err)
	}

	users := identity.NewFakeDatabase()
	users.AddAccount(testIdentity(), "staff")

	broker := NewBroker(context.Background(), BrokerConfig{
		Policies:       writePolicy(t, users),
		Users:          users,
		Resolver:       resolver,
		Runner:         runner,
		Logger:         testLogger(),
		RunDir:         runDir,
		RequestTimeout: 5 * time.Second,
	})
	t.Cleanup(broker.Channels().Close)
	return broker, runDir
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dialing %s: %v", socketPath, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, msg wire.Message) wire.Message {
	t.Helper()
	if err := wire.WriteMessage(conn, msg); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	reply, err := wire.ReadMessage(conn, wire.MaxFrame)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	return reply
}

func requireStatus(t *testing.T, msg wire.Message, want wire.StatusCode) {
	t.Helper()
	status, ok := msg.(*wire.Status)
	if !ok {
		t.Fatalf("reply = %T, want *wire.Status", msg)
	}
	if status.Code != want {
		t.Fatalf("status = %q, want %q", status.Code, want)
	}
}

func startControl(t *testing.T, broker *Broker, runDir string) string {
	t.Helper()
	socketPath := registry.ControlSocket(runDir)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on control socket: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	go broker.ServeControl(listener)
	return socketPath
}

func TestControlCreateAndDestroy(t *testing.T) {
	broker, runDir := newTestBroker(t, staticResolver{}, &spyRunner{})
	control := startControl(t, broker, runDir)
	uid := uint32(os.Getuid())

	// Create, then create again: both succeed, the second as a no-op.
	for i := 0; i < 2; i++ {
		reply := roundTrip(t, dial(t, control), &wire.Control{Op: wire.OpCreate, TargetUID: uid})
		requireStatus(t, reply, wire.StatusOK)
	}
	if _, err := os.Stat(registry.CommSocket(runDir, uid)); err != nil {
		t.Fatalf("comm socket missing after create: %v", err)
	}

	// Destroy, then destroy again: both succeed.
	for i := 0; i < 2; i++ {
		reply := roundTrip(t, dial(t, control), &wire.Control{Op: wire.OpDestroy, TargetUID: uid})
		requireStatus(t, reply, wire.StatusOK)
	}
	if _, err := os.Stat(registry.CommSocket(runDir, uid)); !os.IsNotExist(err) {
		t.Fatalf("comm socket still present after destroy (err=%v)", err)
	}
}

func TestControlNotEligible(t *testing.T) {
	broker, runDir := newTestBroker(t, staticResolver{}, &spyRunner{})
	control := startControl(t, broker, runDir)

	reply := roundTrip(t, dial(t, control), &wire.Control{Op: wire.OpCreate, TargetUID: 4999999})
	requireStatus(t, reply, wire.StatusNotEligible)
}

func TestControlRejectsWrongFrameType(t *testing.T) {
	broker, runDir := newTestBroker(t, staticResolver{}, &spyRunner{})
	control := startControl(t, broker, runDir)

	reply := roundTrip(t, dial(t, control), &wire.Request{Mode: wire.ModeRun, Action: "greet"})
	requireStatus(t, reply, wire.StatusProtocolError)
}

// openChannel creates a comm socket for the test identity and returns
// its path.
func openChannel(t *testing.T, broker *Broker, runDir string) string {
	t.Helper()
	uid := uint32(os.Getuid())
	if _, err := broker.Channels().Create(uid); err != nil {
		t.Fatalf("creating channel: %v", err)
	}
	return registry.CommSocket(runDir, uid)
}

func callerSelf() identity.Caller {
	return identity.Caller{
		UID:      uint32(os.Getuid()),
		GID:      uint32(os.Getgid()),
		PID:      int32(os.Getpid()),
		Username: "tester",
	}
}

func TestRunFlowDeliversOutputAndResult(t *testing.T) {
	runner := &spyRunner{output: "hello\n", exitCode: 3}
	broker, runDir := newTestBroker(t, staticResolver{caller: callerSelf()}, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeRun, Action: "greet"}), wire.StatusPermitted)

	output, err := wire.ReadMessage(conn, wire.MaxFrame)
	if err != nil {
		t.Fatalf("reading output frame: %v", err)
	}
	chunk, ok := output.(*wire.Output)
	if !ok {
		t.Fatalf("second frame = %T, want *wire.Output", output)
	}
	if chunk.Stream != wire.StreamStdout || string(chunk.Data) != "hello\n" {
		t.Errorf("output = %s %q, want stdout \"hello\\n\"", chunk.Stream, chunk.Data)
	}

	final, err := wire.ReadMessage(conn, wire.MaxFrame)
	if err != nil {
		t.Fatalf("reading result frame: %v", err)
	}
	result, ok := final.(*wire.Result)
	if !ok {
		t.Fatalf("final frame = %T, want *wire.Result", final)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}

	// One request per connection: the daemon closes after the result.
	if _, err := wire.ReadMessage(conn, wire.MaxFrame); !errors.Is(err, io.EOF) {
		t.Errorf("connection still open after result (err=%v)", err)
	}
}

func TestCheckNeverExecutes(t *testing.T) {
	runner := &spyRunner{}
	broker, runDir := newTestBroker(t, staticResolver{caller: callerSelf()}, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeCheck, Action: "greet"}), wire.StatusPermitted)

	if _, err := wire.ReadMessage(conn, wire.MaxFrame); !errors.Is(err, io.EOF) {
		t.Errorf("connection still open after check (err=%v)", err)
	}
	if runner.callCount() != 0 {
		t.Errorf("check spawned the action (%d calls)", runner.callCount())
	}
}

func TestUnknownActionDenied(t *testing.T) {
	runner := &spyRunner{}
	broker, runDir := newTestBroker(t, staticResolver{caller: callerSelf()}, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeRun, Action: "no-such-action"}), wire.StatusDenied)
	if runner.callCount() != 0 {
		t.Errorf("denied request spawned the action (%d calls)", runner.callCount())
	}
}

func TestEmptyPolicyDenied(t *testing.T) {
	runner := &spyRunner{}
	broker, runDir := newTestBroker(t, staticResolver{caller: callerSelf()}, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeRun, Action: "locked"}), wire.StatusDenied)
	if runner.callCount() != 0 {
		t.Errorf("denied request spawned the action (%d calls)", runner.callCount())
	}
}

func TestGroupMembershipAllows(t *testing.T) {
	runner := &spyRunner{}
	broker, runDir := newTestBroker(t, staticResolver{caller: callerSelf()}, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeCheck, Action: "staff-only"}), wire.StatusPermitted)
}

func TestUnresolvablePeerDenied(t *testing.T) {
	runner := &spyRunner{}
	resolver := staticResolver{err: identity.ErrUnresolvable}
	broker, runDir := newTestBroker(t, resolver, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeRun, Action: "greet"}), wire.StatusDenied)
	if runner.callCount() != 0 {
		t.Errorf("unresolvable peer spawned the action (%d calls)", runner.callCount())
	}
}

func TestPeerUIDMismatchDenied(t *testing.T) {
	runner := &spyRunner{}
	other := callerSelf()
	other.UID++ // not the socket owner, not root
	broker, runDir := newTestBroker(t, staticResolver{caller: other}, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeRun, Action: "greet"}), wire.StatusDenied)
	if runner.callCount() != 0 {
		t.Errorf("mismatched peer spawned the action (%d calls)", runner.callCount())
	}
}

func TestExecutionFailureStatus(t *testing.T) {
	runner := &spyRunner{err: errors.New("spawn failed")}
	broker, runDir := newTestBroker(t, staticResolver{caller: callerSelf()}, runner)
	conn := dial(t, openChannel(t, broker, runDir))

	requireStatus(t, roundTrip(t, conn, &wire.Request{Mode: wire.ModeRun, Action: "greet"}), wire.StatusPermitted)

	reply, err := wire.ReadMessage(conn, wire.MaxFrame)
	if err != nil {
		t.Fatalf("reading failure status: %v", err)
	}
	requireStatus(t, reply, wire.StatusExecutionFailure)
}

func TestMalformedCommRequest(t *testing.T) {
	broker, runDir := newTestBroker(t, staticResolver{caller: callerSelf()}, &spyRunner{})
	conn := dial(t, openChannel(t, broker, runDir))

	// A status frame is valid wire format but not a request.
	requireStatus(t, roundTrip(t, conn, &wire.Status{Code: wire.StatusOK}), wire.StatusProtocolError)
}
