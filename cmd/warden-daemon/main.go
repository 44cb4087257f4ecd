// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// warden-daemon is the privilege broker. It loads the action policy,
// opens the administrative control socket, and serves per-caller comm
// sockets created on administrative command. Requests arriving on a
// comm socket are authorized against the policy using the connecting
// process's kernel-reported credentials, then executed as the action's
// configured account with their output relayed back to the caller.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/warden-foundation/warden/lib/config"
	"github.com/warden-foundation/warden/lib/identity"
	"github.com/warden-foundation/warden/lib/policy"
	"github.com/warden-foundation/warden/lib/process"
	"github.com/warden-foundation/warden/lib/registry"
)

const version = "0.1.0"

func main() {
	flags := pflag.NewFlagSet("warden-daemon", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to the daemon config file")
	runDir := flags.String("run-dir", "", "runtime directory for sockets and the pid file")
	policyDir := flags.String("policy-dir", "", "directory of action definition files")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn, or error")
	allowUnprivileged := flags.Bool("allow-unprivileged", false,
		"run without root (actions limited to the daemon's own identity)")
	showVersion := flags.Bool("version", false, "print version and exit")
	flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println("warden-daemon", version)
		return
	}

	configuration := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			process.Fatal(err)
		}
		configuration = loaded
	}
	// Flags override the file.
	if *runDir != "" {
		configuration.RunDir = *runDir
	}
	if *policyDir != "" {
		configuration.PolicyDir = *policyDir
	}
	if *logLevel != "" {
		configuration.LogLevel = *logLevel
	}

	if err := run(configuration, *allowUnprivileged); err != nil {
		process.Fatal(err)
	}
}

func run(configuration config.Config, allowUnprivileged bool) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(configuration.LogLevel),
	}))

	if os.Geteuid() != 0 && !allowUnprivileged {
		return fmt.Errorf("must run as root (or pass --allow-unprivileged)")
	}

	if err := prepareRunDir(configuration.RunDir); err != nil {
		return err
	}
	release, err := acquirePIDFile(registry.PIDFile(configuration.RunDir))
	if err != nil {
		return err
	}
	defer release()

	users := identity.OSDatabase{}
	policies, err := policy.Load(configuration.PolicyDir, users)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}
	logger.Info("policy loaded",
		"dir", configuration.PolicyDir,
		"actions", policies.Len(),
		"names", strings.Join(policies.Names(), ","))

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	broker := NewBroker(ctx, BrokerConfig{
		Policies:       policies,
		Users:          users,
		Resolver:       identity.PeerResolver{Users: users},
		Runner:         NewExecutor(logger),
		Logger:         logger,
		RunDir:         configuration.RunDir,
		RequestTimeout: configuration.RequestTimeout,
	})

	controlListener, err := listenControl(registry.ControlSocket(configuration.RunDir))
	if err != nil {
		return err
	}
	logger.Info("daemon ready",
		"version", version,
		"run_dir", configuration.RunDir,
		"control_socket", registry.ControlSocket(configuration.RunDir))

	go broker.ServeControl(controlListener)

	<-ctx.Done()
	logger.Info("shutting down")
	controlListener.Close()
	broker.Channels().Close()
	return nil
}

// prepareRunDir creates the runtime directory tree and removes socket
// files left behind by a previous run. Channel state is not persistent:
// every daemon start begins with no channels.
func prepareRunDir(runDir string) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	commDir := registry.CommDir(runDir)
	if err := os.RemoveAll(commDir); err != nil {
		return fmt.Errorf("clearing comm dir: %w", err)
	}
	if err := os.MkdirAll(commDir, 0o755); err != nil {
		return fmt.Errorf("creating comm dir: %w", err)
	}
	if err := os.Remove(registry.ControlSocket(runDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale control socket: %w", err)
	}
	return nil
}

// acquirePIDFile enforces single-instance operation. A pid file naming
// a live process means another daemon owns this run dir; a stale file
// (dead pid, unparseable content) is taken over.
func acquirePIDFile(path string) (release func(), err error) {
	if data, err := os.ReadFile(path); err == nil {
		if pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil {
			if unix.Kill(pid, 0) == nil || os.Getpid() == pid {
				return nil, fmt.Errorf("already running (pid %d, per %s)", pid, path)
			}
		}
	}
	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("writing pid file: %w", err)
	}
	return func() { os.Remove(path) }, nil
}

// listenControl opens the administrative socket, restricted to root.
func listenControl(socketPath string) (net.Listener, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale control socket: %w", err)
	}
	address, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, err
	}
	listener, err := net.ListenUnix("unix", address)
	if err != nil {
		return nil, fmt.Errorf("listening on control socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting control socket: %w", err)
	}
	return listener, nil
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
