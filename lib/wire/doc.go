// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines Warden's socket protocol: length-delimited
// frames carrying CBOR-encoded messages.
//
// Each frame is a 4-byte big-endian payload length followed by a CBOR
// envelope {type, payload}. The type tag set is closed; a frame whose
// tag is outside the set, or whose payload does not validate against
// the tagged type, is a protocol error. Frames are bounded: the daemon
// reads requests with [MaxRequestFrame], clients read responses with
// [MaxFrame]. Oversized frames are rejected before any payload is
// buffered.
//
// The message flow on a comm socket is strictly one-shot: the client
// sends a single [Request], the daemon answers with a [Status] frame
// and, for a permitted run, a stream of [Output] frames terminated by
// a [Result] frame. The control socket carries a single [Control]
// request answered by a [Status] frame.
//
// Both cmd/warden-daemon and the client binaries import this package
// so the wire types are defined once rather than mirrored.
package wire
