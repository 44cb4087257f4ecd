// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"sort"
)

// ErrNotFound is returned by Lookup for unknown action names. Sessions
// must not leak this distinction to callers — on the wire an unknown
// action and a forbidden action are both "denied". It exists so the
// daemon's own logs can tell operators which one happened.
var ErrNotFound = errors.New("policy: no such action")

// Store is the immutable action table for one daemon session. Safe for
// concurrent reads without locking; a policy change means loading a
// new Store.
type Store struct {
	actions map[string]*Action
}

// Lookup returns the action with the given name, or ErrNotFound.
func (s *Store) Lookup(name string) (*Action, error) {
	action, ok := s.actions[name]
	if !ok {
		return nil, ErrNotFound
	}
	return action, nil
}

// Names returns all action names in sorted order, for startup logging
// and diagnostics.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of loaded actions.
func (s *Store) Len() int { return len(s.actions) }
