// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/warden-foundation/warden/lib/authz"
	"github.com/warden-foundation/warden/lib/identity"
	"github.com/warden-foundation/warden/lib/policy"
	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/lib/wire"
)

// handleComm serves one comm connection: one Request frame in, then
// either a single denial, a permitted-only answer for checks, or the
// permitted/output/result sequence for runs. Every exit path closes
// the connection; the one-request-per-connection shape means there is
// nothing to resynchronize.
func (b *Broker) handleComm(record registry.Record, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(b.requestTimeout))

	msg, err := wire.ReadMessage(conn, wire.MaxRequestFrame)
	if err != nil {
		b.rejectProtocol(conn, "comm", err)
		return
	}
	request, ok := msg.(*wire.Request)
	if !ok {
		b.rejectProtocol(conn, "comm", errors.New("unexpected frame type"))
		return
	}

	caller, err := b.resolver.Resolve(conn)
	if err != nil {
		// Unresolvable peers are denied, not erred: the caller learns
		// nothing about why.
		b.logger.Warn("comm peer unresolvable",
			"socket_uid", record.UID, "action", request.Action, "error", err)
		b.writeStatus(conn, wire.StatusDenied)
		return
	}

	// The socket file is 0600 and owned by record.UID, so only that
	// account and root can connect. The credential check closes the
	// gap left by fd passing and inherited descriptors.
	if caller.UID != record.UID && caller.UID != 0 {
		b.logger.Warn("comm peer uid mismatch",
			"socket_uid", record.UID, "peer_uid", caller.UID, "action", request.Action)
		b.writeStatus(conn, wire.StatusDenied)
		return
	}

	action, result, err := b.authorize(caller, request.Action)
	if err != nil || result.Decision != authz.Allow {
		b.logDenial(caller, request, result, err)
		b.writeStatus(conn, wire.StatusDenied)
		return
	}

	logger := b.logger.With(
		"action", action.Name,
		"caller", caller.Username,
		"caller_uid", caller.UID,
		"caller_pid", caller.PID)
	logger.Info("request authorized",
		"mode", request.Mode,
		"matched_user", result.MatchedUser,
		"matched_group", result.MatchedGroup)

	b.writeStatus(conn, wire.StatusPermitted)
	if request.Mode == wire.ModeCheck {
		return
	}

	// Writes past this point go through the sink, which absorbs a
	// vanished client: the action keeps running to completion either
	// way, so a caller cannot abort an action's side effects by
	// hanging up at the right moment.
	conn.SetReadDeadline(time.Time{})
	sink := newConnSink(conn, b.requestTimeout)

	exitCode, err := b.runner.Run(b.ctx, action, sink)
	if err != nil {
		logger.Error("action failed", "error", err)
		if sink.alive() {
			b.writeStatus(conn, wire.StatusExecutionFailure)
		}
		return
	}

	logger.Info("action finished", "exit_code", exitCode)
	if sink.alive() {
		conn.SetWriteDeadline(time.Now().Add(b.requestTimeout))
		if err := wire.WriteMessage(conn, &wire.Result{ExitCode: exitCode}); err != nil {
			logger.Debug("writing result", "error", err)
		}
	}
}

// authorize resolves the named action and decides whether caller may
// invoke it. An unknown action and a lookup failure both come back as
// a deny-shaped answer; only the log distinguishes them.
func (b *Broker) authorize(caller identity.Caller, name string) (*policy.Action, authz.Result, error) {
	action, err := b.policies.Lookup(name)
	if err != nil {
		return nil, authz.Result{}, err
	}

	account, err := b.users.LookupUID(caller.UID)
	if err != nil {
		return nil, authz.Result{}, err
	}
	groups, err := b.users.Groups(account)
	if err != nil {
		return nil, authz.Result{}, err
	}

	return action, authz.Decide(caller, groups, action), nil
}

func (b *Broker) logDenial(caller identity.Caller, request *wire.Request, result authz.Result, err error) {
	logger := b.logger.With(
		"action", request.Action,
		"mode", request.Mode,
		"caller", caller.Username,
		"caller_uid", caller.UID)
	switch {
	case errors.Is(err, policy.ErrNotFound):
		logger.Info("request denied", "reason", "unknown action")
	case err != nil:
		logger.Warn("request denied", "reason", "identity lookup failed", "error", err)
	default:
		logger.Info("request denied", "reason", result.Reason.String())
	}
}

// connSink forwards output chunks to the client connection. Once a
// write fails, the client is considered gone and all further output is
// discarded silently while the action runs on.
type connSink struct {
	conn         net.Conn
	writeTimeout time.Duration

	mu   sync.Mutex
	gone bool
}

func newConnSink(conn net.Conn, writeTimeout time.Duration) *connSink {
	return &connSink{conn: conn, writeTimeout: writeTimeout}
}

// Chunk implements OutputSink.
func (s *connSink) Chunk(stream wire.StreamTag, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := wire.WriteMessage(s.conn, &wire.Output{Stream: stream, Data: data}); err != nil {
		s.gone = true
	}
}

// alive reports whether the client has accepted every frame so far.
func (s *connSink) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.gone
}
