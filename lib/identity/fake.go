// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import "fmt"

// FakeDatabase is an in-memory Database for tests. Production code
// injects OSDatabase; tests inject a FakeDatabase populated with
// exactly the accounts and groups the scenario needs.
type FakeDatabase struct {
	accounts map[string]Account
	byUID    map[uint32]Account
	groups   map[string][]string // username → group names
	gids     map[string]uint32   // group name → gid
}

var _ Database = (*FakeDatabase)(nil)

// NewFakeDatabase returns an empty fake user database.
func NewFakeDatabase() *FakeDatabase {
	return &FakeDatabase{
		accounts: make(map[string]Account),
		byUID:    make(map[uint32]Account),
		groups:   make(map[string][]string),
		gids:     make(map[string]uint32),
	}
}

// AddAccount registers an account and its group memberships. Groups
// not yet known are assigned sequential gids. Returns the account for
// convenient use in test assertions.
func (f *FakeDatabase) AddAccount(account Account, groups ...string) Account {
	f.accounts[account.Username] = account
	f.byUID[account.UID] = account
	f.groups[account.Username] = groups
	for _, group := range groups {
		if _, known := f.gids[group]; !known {
			f.gids[group] = uint32(10000 + len(f.gids))
		}
	}
	return account
}

// AddGroup registers a group with an explicit gid.
func (f *FakeDatabase) AddGroup(name string, gid uint32) {
	f.gids[name] = gid
}

// LookupUID implements Database.
func (f *FakeDatabase) LookupUID(uid uint32) (Account, error) {
	account, ok := f.byUID[uid]
	if !ok {
		return Account{}, fmt.Errorf("%w: uid %d", ErrUnknownUser, uid)
	}
	return account, nil
}

// LookupUsername implements Database.
func (f *FakeDatabase) LookupUsername(name string) (Account, error) {
	account, ok := f.accounts[name]
	if !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrUnknownUser, name)
	}
	return account, nil
}

// Groups implements Database.
func (f *FakeDatabase) Groups(account Account) ([]string, error) {
	groups, ok := f.groups[account.Username]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, account.Username)
	}
	return groups, nil
}

// LookupGroup implements Database.
func (f *FakeDatabase) LookupGroup(name string) (uint32, error) {
	gid, ok := f.gids[name]
	if !ok {
		return 0, fmt.Errorf("%w: group %q", ErrUnknownUser, name)
	}
	return gid, nil
}
