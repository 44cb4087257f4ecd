// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import "errors"

// ErrUnresolvable is returned when a connection's peer credentials
// cannot be obtained, or when the kernel-reported uid has no account
// in the user database. Sessions treat this as a denial, not a crash.
var ErrUnresolvable = errors.New("identity: peer identity unresolvable")

// ErrUnknownUser is returned by Database lookups for accounts that do
// not exist.
var ErrUnknownUser = errors.New("identity: unknown user")

// Caller is the verified identity of the process on the far end of a
// connection. Always derived from peer credentials, never from payload
// data. Scoped to one session.
type Caller struct {
	// UID and GID are the peer's kernel-reported credentials.
	UID uint32
	GID uint32

	// PID is the peer process id at connect time. Informational: it is
	// logged for operators but never used for decisions, since the
	// process may have exited or the pid been recycled.
	PID int32

	// Username is the account name the UID resolved to.
	Username string
}

// Account is one entry of the host user database.
type Account struct {
	UID      uint32
	GID      uint32
	Username string
	HomeDir  string
}

// Database is the host account database. Implementations must be safe
// for concurrent use.
type Database interface {
	// LookupUID finds an account by uid. Returns ErrUnknownUser if no
	// account has that uid.
	LookupUID(uid uint32) (Account, error)

	// LookupUsername finds an account by name. Returns ErrUnknownUser
	// if no account has that name.
	LookupUsername(name string) (Account, error)

	// Groups returns the names of all groups the account is a member
	// of, including its primary group.
	Groups(account Account) ([]string, error)

	// LookupGroup finds a group's gid by name. Returns ErrUnknownUser
	// if no group has that name.
	LookupGroup(name string) (uint32, error)
}
