// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "github.com/warden-foundation/warden/lib/identity"

// Action is one named, policy-governed operation. Immutable once
// loaded.
type Action struct {
	// Name is the unique identifier callers request.
	Name string `json:"name"`

	// Command is the shell command executed via /bin/sh -c.
	Command string `json:"command"`

	// User is the account the command runs as. Defaults to root.
	// This is the execution identity — independent of the caller, so
	// "who may ask" stays decoupled from "who executes".
	User string `json:"user"`

	// Group optionally overrides the execution account's primary
	// group.
	Group string `json:"group"`

	// AllowedUsers and AllowedGroups define the permitted callers: a
	// caller is permitted when its username is listed, or when it is a
	// member of a listed group. Both empty means nobody may invoke the
	// action — deny is the default, an action must opt callers in.
	AllowedUsers  []string `json:"allowed_users"`
	AllowedGroups []string `json:"allowed_groups"`

	// EnvPass lists environment variables of the daemon that pass
	// through to the action. Everything not listed is stripped.
	EnvPass []string `json:"env_pass"`

	// EnvSet lists variables injected into the action's environment,
	// applied after EnvPass.
	EnvSet map[string]string `json:"env_set"`

	// RunAs is the resolved execution identity. Populated at load by
	// resolving User (and Group) against the user database, so a
	// dangling account name fails daemon startup instead of the first
	// run request.
	RunAs identity.Account `json:"-"`

	// RunAsGID is the gid the command runs with: the Group override
	// when present, the account's primary gid otherwise.
	RunAsGID uint32 `json:"-"`
}
