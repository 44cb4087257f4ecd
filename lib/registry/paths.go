// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"path/filepath"
)

// DefaultRunDir is the runtime directory for sockets and the pid file.
const DefaultRunDir = "/run/warden"

// ControlSocket returns the administrative socket path under runDir.
// The control socket is owned by root with mode 0600: the access
// boundary between administrative and requesting traffic.
func ControlSocket(runDir string) string {
	return filepath.Join(runDir, "control.sock")
}

// CommDir returns the directory holding per-caller comm sockets.
func CommDir(runDir string) string {
	return filepath.Join(runDir, "comm")
}

// CommSocket returns the comm socket path for a caller uid. Sockets
// are named by uid rather than username so a client can locate its own
// socket without a user-database round trip, and so the path charset
// never depends on account naming conventions.
func CommSocket(runDir string, uid uint32) string {
	return filepath.Join(CommDir(runDir), fmt.Sprintf("%d.sock", uid))
}

// PIDFile returns the daemon pid file path under runDir.
func PIDFile(runDir string) string {
	return filepath.Join(runDir, "pid")
}
