// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Resolver maps an open connection to the verified identity of the
// process on the other end. Implementations never consult request
// payload data.
type Resolver interface {
	Resolve(conn net.Conn) (Caller, error)
}

// PeerResolver resolves identities from SO_PEERCRED on Unix domain
// sockets, then resolves the uid to an account name through the user
// database.
type PeerResolver struct {
	Users Database
}

var _ Resolver = PeerResolver{}

// Resolve implements Resolver. Any failure — a non-Unix connection,
// a getsockopt error, a uid with no account — is reported as
// ErrUnresolvable so sessions can treat it uniformly as a denial.
func (r PeerResolver) Resolve(conn net.Conn) (Caller, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Caller{}, fmt.Errorf("%w: not a unix socket (%T)", ErrUnresolvable, conn)
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}

	var credentials *unix.Ucred
	var sockoptErr error
	controlErr := raw.Control(func(fd uintptr) {
		credentials, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrUnresolvable, controlErr)
	}
	if sockoptErr != nil {
		return Caller{}, fmt.Errorf("%w: SO_PEERCRED: %v", ErrUnresolvable, sockoptErr)
	}

	account, err := r.Users.LookupUID(credentials.Uid)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: uid %d has no account: %v", ErrUnresolvable, credentials.Uid, err)
	}

	return Caller{
		UID:      credentials.Uid,
		GID:      credentials.Gid,
		PID:      credentials.Pid,
		Username: account.Username,
	}, nil
}
