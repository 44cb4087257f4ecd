// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cli

// ExitError signals a specific process exit code. When the Message is
// empty, nothing is printed — the command has already written its own
// output (warden-run relaying an action's streams, for example), and
// the non-zero code is the outcome, not an error to report.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode returns the process exit code. Main checks for this
// interface on returned errors to distinguish "handled non-zero exit"
// from "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}
