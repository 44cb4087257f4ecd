// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves who is on the other end of a Warden
// socket, and what the host's user database says about them.
//
// The caller's identity is read exclusively from transport-level peer
// credentials (SO_PEERCRED on the connected Unix socket). Nothing in a
// request payload can influence it: a client claiming to be root in
// its request bytes is still whoever the kernel says opened the
// connection.
//
// [Database] abstracts the host account database (os/user in
// production, [NewFakeDatabase] in tests) so that authorization and
// registry logic can be exercised without real accounts.
package identity
