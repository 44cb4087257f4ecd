// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"

	"github.com/warden-foundation/warden/lib/policy"
	"github.com/warden-foundation/warden/lib/wire"
)

// outputChunkSize is how much child output is read before forwarding a
// chunk. Small enough that interactive-ish actions feel live, large
// enough that a chatty action does not drown the session in frames.
const outputChunkSize = 1024

// OutputSink receives the running action's output as it is produced.
// Chunk may be called concurrently from the stdout and stderr readers;
// implementations must serialize internally.
type OutputSink interface {
	Chunk(stream wire.StreamTag, data []byte)
}

// Executor spawns actions as their configured execution identity.
type Executor struct {
	logger *slog.Logger

	// euid is the daemon's effective uid. When an action's execution
	// identity already matches it, no credential switch is requested;
	// this is what lets an unprivileged daemon run same-uid actions.
	euid uint32
}

// NewExecutor returns an executor for the current process identity.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger, euid: uint32(os.Geteuid())}
}

// Run executes action via /bin/sh -c and streams its output to sink.
// The returned exit code is the action's real exit status. A non-nil
// error means the action could not be spawned or was terminated by a
// signal; no exit code is fabricated for those cases.
func (e *Executor) Run(ctx context.Context, action *policy.Action, sink OutputSink) (int, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", action.Command)

	cmd.Dir = workingDir(action.RunAs.HomeDir)
	cmd.Env = actionEnv(action, cmd.Dir)

	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if action.RunAs.UID != e.euid {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: action.RunAs.UID,
			Gid: action.RunAsGID,
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting action %q: %w", action.Name, err)
	}
	e.logger.Info("action started",
		"action", action.Name,
		"pid", cmd.Process.Pid,
		"run_as", action.RunAs.Username)

	var readers sync.WaitGroup
	readers.Add(2)
	go e.forward(&readers, stdout, wire.StreamStdout, sink)
	go e.forward(&readers, stderr, wire.StreamStderr, sink)

	// Drain both pipes before Wait: Wait closes the pipe read ends.
	readers.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("action %q terminated abnormally: %w", action.Name, err)
	}
	return 0, nil
}

// forward copies one child stream to the sink in bounded chunks.
func (e *Executor) forward(readers *sync.WaitGroup, stream io.Reader, tag wire.StreamTag, sink OutputSink) {
	defer readers.Done()
	buffer := make([]byte, outputChunkSize)
	for {
		n, err := stream.Read(buffer)
		if n > 0 {
			sink.Chunk(tag, buffer[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				e.logger.Warn("reading action output", "stream", tag, "error", err)
			}
			return
		}
	}
}

// workingDir picks the action's working directory: the execution
// account's home when it exists, the filesystem root otherwise. An
// action must never inherit the daemon's working directory.
func workingDir(home string) string {
	if home != "" {
		if info, err := os.Stat(home); err == nil && info.IsDir() {
			return home
		}
	}
	return "/"
}

// actionEnv builds the child environment from scratch. The daemon's
// own environment never leaks through except for variables the action
// explicitly passes with env_pass.
func actionEnv(action *policy.Action, dir string) []string {
	env := []string{
		"HOME=" + action.RunAs.HomeDir,
		"LOGNAME=" + action.RunAs.Username,
		"USER=" + action.RunAs.Username,
		"SHELL=/bin/sh",
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"PWD=" + dir,
	}

	for _, name := range action.EnvPass {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}

	names := make([]string, 0, len(action.EnvSet))
	for name := range action.EnvSet {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env = append(env, name+"="+action.EnvSet[name])
	}
	return env
}
