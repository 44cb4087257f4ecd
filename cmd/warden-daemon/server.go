// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/warden-foundation/warden/lib/identity"
	"github.com/warden-foundation/warden/lib/policy"
	"github.com/warden-foundation/warden/lib/registry"
	"github.com/warden-foundation/warden/lib/wire"
)

// actionRunner is the execution dependency of a session. Satisfied by
// *Executor; tests substitute a spy to prove denied and check requests
// never reach it.
type actionRunner interface {
	Run(ctx context.Context, action *policy.Action, sink OutputSink) (int, error)
}

// Broker ties the daemon together: it owns the policy table, the
// channel registry, and the session state machine for both socket
// kinds.
type Broker struct {
	policies *policy.Store
	users    identity.Database
	resolver identity.Resolver
	channels *registry.Registry
	runner   actionRunner
	logger   *slog.Logger

	// requestTimeout bounds the wait for a connected client's single
	// request frame.
	requestTimeout time.Duration

	// ctx is the daemon lifetime; in-flight actions are killed when it
	// is cancelled.
	ctx context.Context
}

// BrokerConfig carries the dependencies for NewBroker.
type BrokerConfig struct {
	Policies       *policy.Store
	Users          identity.Database
	Resolver       identity.Resolver
	Runner         actionRunner
	Logger         *slog.Logger
	RunDir         string
	RequestTimeout time.Duration
}

// NewBroker builds a broker and its channel registry. Comm sockets are
// not created here; they appear on administrative command.
func NewBroker(ctx context.Context, config BrokerConfig) *Broker {
	broker := &Broker{
		policies:       config.Policies,
		users:          config.Users,
		resolver:       config.Resolver,
		runner:         config.Runner,
		logger:         config.Logger,
		requestTimeout: config.RequestTimeout,
		ctx:            ctx,
	}
	broker.channels = registry.New(config.RunDir, config.Users, broker.handleComm, config.Logger)
	return broker
}

// Channels exposes the registry for shutdown and tests.
func (b *Broker) Channels() *registry.Registry {
	return b.channels
}

// ServeControl accepts administrative connections until the listener
// closes.
func (b *Broker) ServeControl(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.logger.Error("accept on control socket", "error", err)
			}
			return
		}
		go b.handleControl(conn)
	}
}

// handleControl serves one control connection: exactly one Control
// frame in, exactly one Status frame out.
func (b *Broker) handleControl(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(b.requestTimeout))

	msg, err := wire.ReadMessage(conn, wire.MaxRequestFrame)
	if err != nil {
		b.rejectProtocol(conn, "control", err)
		return
	}
	control, ok := msg.(*wire.Control)
	if !ok {
		b.rejectProtocol(conn, "control", errors.New("unexpected frame type"))
		return
	}

	var code wire.StatusCode
	switch control.Op {
	case wire.OpCreate:
		_, err = b.channels.Create(control.TargetUID)
		switch {
		case err == nil:
			code = wire.StatusOK
		case errors.Is(err, registry.ErrNotEligible):
			code = wire.StatusNotEligible
			b.logger.Warn("channel refused", "uid", control.TargetUID, "error", err)
		default:
			b.logger.Error("channel create failed", "uid", control.TargetUID, "error", err)
			return
		}
	case wire.OpDestroy:
		if _, err = b.channels.Destroy(control.TargetUID); err != nil {
			b.logger.Error("channel destroy failed", "uid", control.TargetUID, "error", err)
			return
		}
		code = wire.StatusOK
	}

	b.writeStatus(conn, code)
}

// rejectProtocol answers a structurally broken request. Clean EOF gets
// no answer: the client connected and left, which is not a protocol
// violation worth a frame.
func (b *Broker) rejectProtocol(conn net.Conn, socket string, err error) {
	if errors.Is(err, io.EOF) {
		return
	}
	b.logger.Warn("rejecting request", "socket", socket, "error", err)
	b.writeStatus(conn, wire.StatusProtocolError)
}

// writeStatus sends one status frame, best effort. A client that is
// gone by now loses nothing it was entitled to.
func (b *Broker) writeStatus(conn net.Conn, code wire.StatusCode) {
	conn.SetWriteDeadline(time.Now().Add(b.requestTimeout))
	if err := wire.WriteMessage(conn, &wire.Status{Code: code}); err != nil {
		b.logger.Debug("writing status", "code", code, "error", err)
	}
}
