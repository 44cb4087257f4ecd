// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy loads and holds Warden's action definitions.
//
// Actions are authored on disk as JSONC files (JSON extended with
// comments and trailing commas) in a conf.d-style directory; each file
// contributes any number of actions. The typical flow:
//
//  1. Load: read every *.jsonc/*.json file in the directory
//  2. validate: name charset, non-empty command, closed field set
//  3. resolve: execution identity → uid/gid via the user database
//
// Any problem — a duplicate action name, an unresolvable execution
// identity, a malformed file — fails the whole load with a
// [ConfigError]. The daemon treats that as fatal: it must not run
// with a partially-loaded, ambiguous policy.
//
// The resulting [Store] is immutable and safe for concurrent reads
// without locking.
package policy
