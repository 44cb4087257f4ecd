// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/warden-foundation/warden/lib/identity"
)

// ConfigError describes a fatal problem in the policy directory. The
// daemon refuses to start on any ConfigError.
type ConfigError struct {
	// File is the offending file path, empty for directory-level
	// problems (e.g. a duplicate name across two files is attributed
	// to the second file).
	File string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("policy: %v", e.Err)
	}
	return fmt.Sprintf("policy: %s: %v", e.File, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// actionNamePattern is the allowed action name charset. Mirrors the
// localpart discipline: names appear in log lines and requests, so
// keep them to a boring, unambiguous set.
var actionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// policyFile is the on-disk shape of one policy file.
type policyFile struct {
	Actions []Action `json:"actions"`
}

// Load reads every *.json and *.jsonc file in dir (sorted by name, so
// load order is deterministic), validates the actions, and resolves
// each execution identity against users. Any failure returns a
// *ConfigError and no Store.
func Load(dir string, users identity.Database) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("reading policy directory: %w", err)}
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".jsonc":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	actions := make(map[string]*Action)
	for _, path := range paths {
		parsed, err := parseFile(path)
		if err != nil {
			return nil, err
		}
		for i := range parsed {
			action := &parsed[i]
			if _, duplicate := actions[action.Name]; duplicate {
				return nil, &ConfigError{File: path, Err: fmt.Errorf("duplicate action name %q", action.Name)}
			}
			if err := resolve(action, users); err != nil {
				return nil, &ConfigError{File: path, Err: err}
			}
			actions[action.Name] = action
		}
	}

	return &Store{actions: actions}, nil
}

// parseFile strips JSONC comments and trailing commas, unmarshals the
// result, and performs the field-level checks that need no user
// database.
func parseFile(path string) ([]Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{File: path, Err: err}
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	// An unrecognized key is far more likely a typo (e.g.
	// "alowed_users") silently opening or closing access than a
	// deliberate extension. Reject it.
	decoder.DisallowUnknownFields()

	var file policyFile
	if err := decoder.Decode(&file); err != nil {
		return nil, &ConfigError{File: path, Err: fmt.Errorf("parsing: %w", err)}
	}

	for i := range file.Actions {
		action := &file.Actions[i]
		if !actionNamePattern.MatchString(action.Name) {
			return nil, &ConfigError{File: path, Err: fmt.Errorf("invalid action name %q", action.Name)}
		}
		if action.Command == "" {
			return nil, &ConfigError{File: path, Err: fmt.Errorf("action %q has no command", action.Name)}
		}
	}
	return file.Actions, nil
}

// resolve fills Action.RunAs and Action.RunAsGID from the user
// database. A missing account or group is a load-time failure, not a
// first-request surprise.
func resolve(action *Action, users identity.Database) error {
	if action.User == "" {
		action.User = "root"
	}
	account, err := users.LookupUsername(action.User)
	if err != nil {
		return fmt.Errorf("action %q: execution user %q: %w", action.Name, action.User, err)
	}
	action.RunAs = account
	action.RunAsGID = account.GID

	if action.Group != "" {
		gid, err := users.LookupGroup(action.Group)
		if err != nil {
			return fmt.Errorf("action %q: execution group %q: %w", action.Name, action.Group, err)
		}
		action.RunAsGID = gid
	}
	return nil
}
