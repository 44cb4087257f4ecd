// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework shared by the Warden
// client binaries (warden-run, warden-ctl).
//
// A [Command] bundles a name, help text, a lazily-built pflag flag
// set, and a run function. [Command.Execute] handles help flags, flag
// parsing, and dispatch. Commands that need a specific process exit
// code (warden-run relays the action's own exit status, warden-ctl
// distinguishes not-eligible refusals) return an [ExitError]; main
// checks for the ExitCode interface before falling back to the
// generic error path.
package cli
