// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"

	"github.com/warden-foundation/warden/lib/identity"
)

// ErrNotEligible is returned by Create when the target uid cannot hold
// a comm socket because it does not resolve to an account. The
// administrative client surfaces this as its own exit code so
// operators can tell "refused by policy" from "broker malfunctioning".
var ErrNotEligible = errors.New("registry: target uid is not eligible for a channel")

// ErrClosed is returned by Create after Close has begun shutdown.
var ErrClosed = errors.New("registry: shutting down")

// Record describes one live comm socket.
type Record struct {
	// UID is the caller uid this socket is dedicated to.
	UID uint32

	// Username is the uid's resolved account name at create time.
	Username string

	// Path is the socket's filesystem path.
	Path string
}

// ConnHandler is called in its own goroutine for every connection
// accepted on a comm socket. The handler owns the connection and must
// close it.
type ConnHandler func(record Record, conn net.Conn)

// Registry tracks which uids currently have an open comm socket, and
// creates or destroys the socket endpoints on administrative command.
type Registry struct {
	runDir  string
	users   identity.Database
	handler ConnHandler
	logger  *slog.Logger

	// chown sets socket ownership to the target account. Injectable
	// for tests, which cannot chown to arbitrary uids without root.
	chown func(path string, uid, gid int) error

	// mu protects records, perUID, and closed. The per-uid locks in
	// perUID serialize Create/Destroy for one target without blocking
	// operations on other targets; mu itself is only held for map
	// bookkeeping, never across socket syscalls.
	mu      sync.Mutex
	records map[uint32]*liveRecord
	perUID  map[uint32]*sync.Mutex
	closed  bool

	accepting sync.WaitGroup
}

type liveRecord struct {
	Record
	listener *net.UnixListener
}

// New returns a registry serving comm sockets under runDir. handler
// receives every accepted comm connection.
func New(runDir string, users identity.Database, handler ConnHandler, logger *slog.Logger) *Registry {
	return &Registry{
		runDir:  runDir,
		users:   users,
		handler: handler,
		logger:  logger,
		chown:   os.Chown,
		records: make(map[uint32]*liveRecord),
		perUID:  make(map[uint32]*sync.Mutex),
	}
}

// lockFor returns the serialization lock for one target uid.
func (r *Registry) lockFor(uid uint32) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.perUID[uid]
	if !ok {
		lock = &sync.Mutex{}
		r.perUID[uid] = lock
	}
	return lock
}

// Create opens a comm socket for uid, restricted to that uid (mode
// 0600, owned by the target account). Returns (false, nil) as a
// successful no-op when the socket already exists. Returns
// ErrNotEligible when the uid has no account.
func (r *Registry) Create(uid uint32) (created bool, err error) {
	lock := r.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, ErrClosed
	}
	if _, exists := r.records[uid]; exists {
		r.mu.Unlock()
		r.logger.Info("channel already exists", "uid", uid)
		return false, nil
	}
	r.mu.Unlock()

	account, err := r.users.LookupUID(uid)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownUser) {
			return false, fmt.Errorf("%w: %v", ErrNotEligible, err)
		}
		return false, fmt.Errorf("resolving uid %d: %w", uid, err)
	}

	socketPath := CommSocket(r.runDir, uid)
	listener, err := listenRestricted(socketPath, account, r.chown)
	if err != nil {
		return false, fmt.Errorf("creating channel for uid %d: %w", uid, err)
	}

	record := &liveRecord{
		Record:   Record{UID: uid, Username: account.Username, Path: socketPath},
		listener: listener,
	}

	r.mu.Lock()
	r.records[uid] = record
	r.mu.Unlock()

	r.accepting.Add(1)
	go r.acceptLoop(record)

	r.logger.Info("channel created", "uid", uid, "user", account.Username, "socket", socketPath)
	return true, nil
}

// Destroy removes uid's comm socket. Returns (false, nil) as a
// successful no-op when no socket exists.
func (r *Registry) Destroy(uid uint32) (removed bool, err error) {
	lock := r.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	record, exists := r.records[uid]
	if exists {
		delete(r.records, uid)
	}
	r.mu.Unlock()

	if !exists {
		r.logger.Info("channel already absent", "uid", uid)
		return false, nil
	}

	// Closing the listener unlinks the socket file and unblocks the
	// accept loop. Connections already handed to the handler are
	// unaffected: an in-flight action finishes normally.
	if err := record.listener.Close(); err != nil {
		return true, fmt.Errorf("closing channel for uid %d: %w", uid, err)
	}

	r.logger.Info("channel destroyed", "uid", uid, "socket", record.Path)
	return true, nil
}

// Has reports whether uid currently holds a channel.
func (r *Registry) Has(uid uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.records[uid]
	return exists
}

// Active returns the uids that currently hold a channel, sorted.
func (r *Registry) Active() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	uids := make([]uint32, 0, len(r.records))
	for uid := range r.records {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// Close destroys all channels and waits for the accept loops to stop.
// In-flight connection handlers are not waited for; the daemon owns
// their lifecycle.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	records := make([]*liveRecord, 0, len(r.records))
	for uid, record := range r.records {
		records = append(records, record)
		delete(r.records, uid)
	}
	r.mu.Unlock()

	for _, record := range records {
		if err := record.listener.Close(); err != nil {
			r.logger.Warn("closing channel at shutdown", "uid", record.UID, "error", err)
		}
	}
	r.accepting.Wait()
}

// acceptLoop serves one comm socket until its listener closes.
func (r *Registry) acceptLoop(record *liveRecord) {
	defer r.accepting.Done()
	for {
		conn, err := record.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Error("accept on comm socket", "uid", record.UID, "error", err)
			}
			return
		}
		go r.handler(record.Record, conn)
	}
}

// listenRestricted creates a unix listener whose socket file only the
// target account (and root) can open. Ownership and mode are set
// before any client can connect meaningfully: a connection racing the
// chmod sees a socket owned by root with default permissions, which is
// strictly tighter for everyone but root.
func listenRestricted(socketPath string, account identity.Account, chown func(string, int, int) error) (*net.UnixListener, error) {
	// Remove a stale socket file from a previous run.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	address, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, err
	}
	listener, err := net.ListenUnix("unix", address)
	if err != nil {
		return nil, err
	}

	if err := chown(socketPath, int(account.UID), int(account.GID)); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket ownership: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return listener, nil
}
