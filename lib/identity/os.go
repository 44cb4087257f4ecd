// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"os/user"
	"strconv"
)

// OSDatabase is the production Database backed by os/user (and thus
// NSS: /etc/passwd, LDAP, whatever the host is configured with).
type OSDatabase struct{}

var _ Database = OSDatabase{}

// LookupUID implements Database.
func (OSDatabase) LookupUID(uid uint32) (Account, error) {
	entry, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		if _, unknown := err.(user.UnknownUserIdError); unknown {
			return Account{}, fmt.Errorf("%w: uid %d", ErrUnknownUser, uid)
		}
		return Account{}, fmt.Errorf("looking up uid %d: %w", uid, err)
	}
	return accountFromUser(entry)
}

// LookupUsername implements Database.
func (OSDatabase) LookupUsername(name string) (Account, error) {
	entry, err := user.Lookup(name)
	if err != nil {
		if _, unknown := err.(user.UnknownUserError); unknown {
			return Account{}, fmt.Errorf("%w: %q", ErrUnknownUser, name)
		}
		return Account{}, fmt.Errorf("looking up user %q: %w", name, err)
	}
	return accountFromUser(entry)
}

// Groups implements Database.
func (OSDatabase) Groups(account Account) ([]string, error) {
	entry, err := user.Lookup(account.Username)
	if err != nil {
		return nil, fmt.Errorf("looking up user %q: %w", account.Username, err)
	}
	groupIDs, err := entry.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("listing groups for %q: %w", account.Username, err)
	}

	names := make([]string, 0, len(groupIDs))
	for _, gid := range groupIDs {
		group, err := user.LookupGroupId(gid)
		if err != nil {
			// A gid without a group entry (stale supplementary group)
			// is not useful for name-based policy matching; skip it.
			continue
		}
		names = append(names, group.Name)
	}
	return names, nil
}

// LookupGroup implements Database.
func (OSDatabase) LookupGroup(name string) (uint32, error) {
	group, err := user.LookupGroup(name)
	if err != nil {
		if _, unknown := err.(user.UnknownGroupError); unknown {
			return 0, fmt.Errorf("%w: group %q", ErrUnknownUser, name)
		}
		return 0, fmt.Errorf("looking up group %q: %w", name, err)
	}
	gid, err := strconv.ParseUint(group.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("group %q has non-numeric gid %q", name, group.Gid)
	}
	return uint32(gid), nil
}

func accountFromUser(entry *user.User) (Account, error) {
	uid, err := strconv.ParseUint(entry.Uid, 10, 32)
	if err != nil {
		return Account{}, fmt.Errorf("user %q has non-numeric uid %q", entry.Username, entry.Uid)
	}
	gid, err := strconv.ParseUint(entry.Gid, 10, 32)
	if err != nil {
		return Account{}, fmt.Errorf("user %q has non-numeric gid %q", entry.Username, entry.Gid)
	}
	return Account{
		UID:      uint32(uid),
		GID:      uint32(gid),
		Username: entry.Username,
		HomeDir:  entry.HomeDir,
	}, nil
}
