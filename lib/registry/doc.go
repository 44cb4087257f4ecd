// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry owns the daemon's only piece of mutable shared
// state: the table of per-caller comm sockets.
//
// Every mutation goes through [Registry.Create] and [Registry.Destroy].
// Calls for the same target uid are strictly serialized by a per-uid
// lock, so a create can never race a destroy for the same caller;
// calls for different uids proceed concurrently. Exactly one record
// exists per uid at any time.
//
// Both operations are idempotent from the administrative client's
// point of view: creating an existing channel and destroying an absent
// one are successful no-ops. The one distinguished failure is
// [ErrNotEligible] — the target uid does not resolve to an account, so
// it cannot own a socket.
//
// The comm socket table is a derived cache. It carries nothing that
// must survive a daemon restart: re-issuing create calls restores it
// completely, which is why the daemon wipes the run directory at
// startup.
package registry
