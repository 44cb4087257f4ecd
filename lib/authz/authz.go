// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package authz decides whether a caller may invoke an action.
//
// The decision is a pure function of the caller identity, the caller's
// group memberships, and the action's permitted-caller lists: no side
// effects, no hidden state, deterministic for the same inputs. Group
// membership is resolved by the caller of this package (the session
// handler) so that evaluation itself never touches the user database.
//
// Denial is the default. An action with empty allowed lists permits
// nobody; a caller must be opted in by name or by group.
package authz

import (
	"slices"

	"github.com/warden-foundation/warden/lib/identity"
	"github.com/warden-foundation/warden/lib/policy"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny means the action is not permitted.
	Deny Decision = iota

	// Allow means the action is permitted.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why a check was denied. It appears in daemon
// logs only — on the wire every denial looks the same.
type DenyReason int

const (
	// ReasonNotListed means neither the caller's name nor any of its
	// groups appear in the action's allowed lists.
	ReasonNotListed DenyReason = iota

	// ReasonEmptyPolicy means the action lists no permitted callers at
	// all.
	ReasonEmptyPolicy
)

// String returns a human-readable reason.
func (r DenyReason) String() string {
	switch r {
	case ReasonNotListed:
		return "caller not in allowed users or groups"
	case ReasonEmptyPolicy:
		return "action permits no callers"
	default:
		return "unknown"
	}
}

// Result describes the outcome of a check, including which rule
// matched, for audit logging.
type Result struct {
	// Decision is Allow or Deny.
	Decision Decision

	// Reason describes why the check was denied. Only meaningful when
	// Decision is Deny.
	Reason DenyReason

	// MatchedUser is the allowed_users entry that matched, if any.
	MatchedUser string

	// MatchedGroup is the allowed_groups entry that matched, if any.
	MatchedGroup string
}

// Decide checks whether caller (with the given group memberships) may
// invoke action. callerGroups must be the caller's full membership
// list as resolved from the user database; Decide never resolves
// anything itself.
func Decide(caller identity.Caller, callerGroups []string, action *policy.Action) Result {
	if len(action.AllowedUsers) == 0 && len(action.AllowedGroups) == 0 {
		return Result{Decision: Deny, Reason: ReasonEmptyPolicy}
	}

	if slices.Contains(action.AllowedUsers, caller.Username) {
		return Result{Decision: Allow, MatchedUser: caller.Username}
	}

	for _, group := range action.AllowedGroups {
		if slices.Contains(callerGroups, group) {
			return Result{Decision: Allow, MatchedGroup: group}
		}
	}

	return Result{Decision: Deny, Reason: ReasonNotListed}
}
